package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hpungsan/kiki/internal/errors"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.BurstWindow <= 0 {
		return errors.NewInvalidConfig("burst_window", "must be positive")
	}
	if cfg.SettleWindow < cfg.BurstWindow {
		return errors.NewInvalidConfig("settle_window", "must not be shorter than burst_window")
	}
	if cfg.SleepWindow < cfg.SettleWindow {
		return errors.NewInvalidConfig("sleep_window", "must not be shorter than settle_window")
	}
	if cfg.TickInterval <= 0 {
		return errors.NewInvalidConfig("tick_interval", "must be positive")
	}
	if cfg.RetryInterval < 0 {
		return errors.NewInvalidConfig("retry_interval", "must not be negative")
	}
	if cfg.WorkerWindow <= 0 {
		return errors.NewInvalidConfig("worker_window", "must be positive")
	}
	if cfg.PollInterval <= 0 {
		return errors.NewInvalidConfig("poll_interval", "must be positive")
	}
	if cfg.FreshnessWindow <= 0 {
		return errors.NewInvalidConfig("freshness_window", "must be positive")
	}

	switch cfg.Backend {
	case BackendFile, BackendSQLite:
	default:
		return errors.NewInvalidConfig("backend", fmt.Sprintf("must be %q or %q, got %q", BackendFile, BackendSQLite, cfg.Backend))
	}

	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		return errors.NewInvalidConfig("server_port", fmt.Sprintf("%d out of range", cfg.ServerPort))
	}

	for i, h := range cfg.Hooks {
		field := fmt.Sprintf("hooks[%d]", i)
		if err := validateHook(field, h); err != nil {
			return err
		}
	}

	for i, s := range cfg.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if err := validateSource(field, s, cfg.Sources); err != nil {
			return err
		}
	}

	return nil
}

func validateHook(field string, h HookConfig) error {
	hasCommand := strings.TrimSpace(h.Command) != ""
	hasURL := strings.TrimSpace(h.URL) != ""
	if hasCommand == hasURL {
		return errors.NewInvalidConfig(field, "exactly one of command or url is required")
	}
	if h.Timeout < 0 {
		return errors.NewInvalidConfig(field+".timeout", "must not be negative")
	}
	if hasCommand {
		return nil
	}
	if err := validateURL(h.URL); err != nil {
		return errors.NewInvalidConfig(field+".url", err.Error())
	}
	switch h.Format {
	case "", HookFormatRaw, HookFormatGist:
	default:
		return errors.NewInvalidConfig(field+".format", fmt.Sprintf("must be %q or %q", HookFormatRaw, HookFormatGist))
	}
	switch strings.ToUpper(h.Method) {
	case "", http.MethodPut, http.MethodPost, http.MethodPatch:
	default:
		return errors.NewInvalidConfig(field+".method", "must be PUT, POST or PATCH")
	}
	return nil
}

func validateSource(field string, s SourceConfig, all []SourceConfig) error {
	switch s.Kind {
	case SourceLocal, SourceStaticFallback, SourceRemoteMirror:
	default:
		return errors.NewInvalidConfig(field+".kind", fmt.Sprintf("unknown source kind %q", s.Kind))
	}
	if s.Kind == SourceStaticFallback {
		if err := validateStaticURL(s.URL, all); err != nil {
			return errors.NewInvalidConfig(field+".url", err.Error())
		}
	} else if err := validateURL(s.URL); err != nil {
		return errors.NewInvalidConfig(field+".url", err.Error())
	}
	if s.Timeout < 0 || s.Cooldown < 0 || s.MinInterval < 0 {
		return errors.NewInvalidConfig(field, "durations must not be negative")
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// validateStaticURL accepts an absolute http(s) URL, a file:// URL, or a
// relative reference when some other source supplies an absolute base.
func validateStaticURL(raw string, all []SourceConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch {
	case u.Scheme == "file":
		if u.Path == "" {
			return fmt.Errorf("file URL needs a path")
		}
		return nil
	case u.IsAbs():
		return validateURL(raw)
	case u.Host != "":
		return fmt.Errorf("scheme-relative URL %q is not supported", raw)
	case u.Path == "":
		return fmt.Errorf("relative URL needs a path")
	}
	if _, ok := SourceBase(all); !ok {
		return fmt.Errorf("relative URL %q needs an http(s) source to resolve against", raw)
	}
	return nil
}
