package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Storage backends for the persisted snapshot.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Hook payload formats.
const (
	HookFormatRaw  = "raw"
	HookFormatGist = "gist"
)

// Source kinds, in their conventional rank order.
const (
	SourceLocal          = "local"
	SourceStaticFallback = "staticFallback"
	SourceRemoteMirror   = "remoteMirror"
)

// configNames are tried in order; the first file found wins.
var configNames = []string{"config.json", "config.jsonc", "config.yaml", "config.yml", "config.toml"}

// Config holds application configuration.
type Config struct {
	// SessionsDir holds the append-only activity records whose modification
	// times are the primary activity signal. A leading "~" expands to $HOME.
	SessionsDir string `json:"sessions_dir,omitempty" yaml:"sessions_dir,omitempty" toml:"sessions_dir,omitempty"`

	// SessionExt filters SessionsDir entries by extension.
	SessionExt string `json:"session_ext,omitempty" yaml:"session_ext,omitempty" toml:"session_ext,omitempty"`

	// RegistryPath is the optional delegated-worker registry (JSON object
	// keyed by session id, each value carrying updatedAt).
	RegistryPath string `json:"registry_path,omitempty" yaml:"registry_path,omitempty" toml:"registry_path,omitempty"`

	// WorkerWindow is how recently a registry entry must have been updated
	// to count as an active delegated worker.
	WorkerWindow Duration `json:"worker_window,omitempty" yaml:"worker_window,omitempty" toml:"worker_window,omitempty"`

	// WorkerKeyMatch restricts worker counting to registry keys containing
	// this substring. Empty counts every entry.
	WorkerKeyMatch string `json:"worker_key_match,omitempty" yaml:"worker_key_match,omitempty" toml:"worker_key_match,omitempty"`

	// Classifier thresholds. A signal younger than BurstWindow means working,
	// younger than SettleWindow thinking, older than SleepWindow sleeping.
	BurstWindow  Duration `json:"burst_window,omitempty" yaml:"burst_window,omitempty" toml:"burst_window,omitempty"`
	SettleWindow Duration `json:"settle_window,omitempty" yaml:"settle_window,omitempty" toml:"settle_window,omitempty"`
	SleepWindow  Duration `json:"sleep_window,omitempty" yaml:"sleep_window,omitempty" toml:"sleep_window,omitempty"`

	// TickInterval is the classifier cadence.
	TickInterval Duration `json:"tick_interval,omitempty" yaml:"tick_interval,omitempty" toml:"tick_interval,omitempty"`

	// RetryInterval is how long the publisher waits before retrying a failed
	// write. Zero means TickInterval.
	RetryInterval Duration `json:"retry_interval,omitempty" yaml:"retry_interval,omitempty" toml:"retry_interval,omitempty"`

	// RotatePhrases draws working/thinking messages from a small phrase set.
	RotatePhrases bool `json:"rotate_phrases,omitempty" yaml:"rotate_phrases,omitempty" toml:"rotate_phrases,omitempty"`

	// Backend selects where the current snapshot is persisted: "file" or "sqlite".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend,omitempty"`

	// StatusFile is the file backend's path. Empty means <baseDir>/status.json.
	StatusFile string `json:"status_file,omitempty" yaml:"status_file,omitempty" toml:"status_file,omitempty"`

	// Hooks run after every persisted change, in order, detached from the
	// classifier loop.
	Hooks []HookConfig `json:"hooks,omitempty" yaml:"hooks,omitempty" toml:"hooks,omitempty"`

	// ServerBind and ServerPort locate the status endpoint.
	ServerBind string `json:"server_bind,omitempty" yaml:"server_bind,omitempty" toml:"server_bind,omitempty"`
	ServerPort int    `json:"server_port,omitempty" yaml:"server_port,omitempty" toml:"server_port,omitempty"`

	// PollInterval is the viewer-side cadence.
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty"`

	// FreshnessWindow is the age past which a fetched snapshot is stale.
	FreshnessWindow Duration `json:"freshness_window,omitempty" yaml:"freshness_window,omitempty" toml:"freshness_window,omitempty"`

	// Sources is the ranked list the polling client consults.
	Sources []SourceConfig `json:"sources,omitempty" yaml:"sources,omitempty" toml:"sources,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty" toml:"disabled_tools,omitempty"`
}

// HookConfig describes one distribution hook. Exactly one of Command or URL
// is set.
type HookConfig struct {
	Command string   `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`

	URL      string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Method   string `json:"method,omitempty" yaml:"method,omitempty" toml:"method,omitempty"`
	Format   string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty" toml:"file_name,omitempty"`

	// Token is sent unchanged as a bearer credential. $VAR references are
	// expanded from the environment at load time.
	Token string `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`

	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// SourceConfig describes one ranked viewer source.
type SourceConfig struct {
	Kind        string   `json:"kind" yaml:"kind" toml:"kind"`
	URL         string   `json:"url" yaml:"url" toml:"url"`
	Timeout     Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Cooldown    Duration `json:"cooldown,omitempty" yaml:"cooldown,omitempty" toml:"cooldown,omitempty"`
	MinInterval Duration `json:"min_interval,omitempty" yaml:"min_interval,omitempty" toml:"min_interval,omitempty"`
	Token       string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SessionsDir:     "~/.clawdbot/agents/main/sessions",
		SessionExt:      ".jsonl",
		RegistryPath:    "~/.clawdbot/agents/main/sessions/sessions.json",
		WorkerWindow:    Minutes(5),
		BurstWindow:     Seconds(10),
		SettleWindow:    Seconds(60),
		SleepWindow:     Minutes(15),
		TickInterval:    Seconds(5),
		Backend:         BackendFile,
		ServerBind:      "127.0.0.1",
		ServerPort:      3847,
		PollInterval:    Seconds(2),
		FreshnessWindow: Minutes(2),
		Sources: []SourceConfig{
			{Kind: SourceLocal, URL: "http://127.0.0.1:3847/status"},
		},
	}
}

// Load loads configuration from baseDir/config.json (or .jsonc, .yaml, .toml).
// Returns default config if no file exists.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.kiki.
func Load(baseDir string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(baseDir, name)
		if _, err := os.Stat(path); err == nil {
			return loadFile(path)
		}
	}
	return loadFile("")
}

// StatusPath returns the file backend's path, defaulting under baseDir.
func (c *Config) StatusPath(baseDir string) string {
	if c.StatusFile != "" {
		return ExpandHome(c.StatusFile)
	}
	return filepath.Join(baseDir, "status.json")
}

// EffectiveRetryInterval returns RetryInterval, or TickInterval when unset.
func (c *Config) EffectiveRetryInterval() Duration {
	if c.RetryInterval > 0 {
		return c.RetryInterval
	}
	return c.TickInterval
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		// JSON config may carry // comments and trailing commas.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	merged := Merge(DefaultConfig(), cfg)
	expandTokens(merged)
	return merged, nil
}

// expandTokens resolves $VAR references in credential fields.
func expandTokens(cfg *Config) {
	for i := range cfg.Hooks {
		cfg.Hooks[i].Token = os.ExpandEnv(cfg.Hooks[i].Token)
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Token = os.ExpandEnv(cfg.Sources[i].Token)
	}
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; string arrays are merged and
// deduplicated; hook and source lists are replaced wholesale when the
// overlay has any, because their order is significant.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SessionsDir = pickString(overlay.SessionsDir, base.SessionsDir)
	result.SessionExt = pickString(overlay.SessionExt, base.SessionExt)
	result.RegistryPath = pickString(overlay.RegistryPath, base.RegistryPath)
	result.WorkerKeyMatch = pickString(overlay.WorkerKeyMatch, base.WorkerKeyMatch)
	result.Backend = pickString(overlay.Backend, base.Backend)
	result.StatusFile = pickString(overlay.StatusFile, base.StatusFile)
	result.ServerBind = pickString(overlay.ServerBind, base.ServerBind)

	result.WorkerWindow = pickDuration(overlay.WorkerWindow, base.WorkerWindow)
	result.BurstWindow = pickDuration(overlay.BurstWindow, base.BurstWindow)
	result.SettleWindow = pickDuration(overlay.SettleWindow, base.SettleWindow)
	result.SleepWindow = pickDuration(overlay.SleepWindow, base.SleepWindow)
	result.TickInterval = pickDuration(overlay.TickInterval, base.TickInterval)
	result.RetryInterval = pickDuration(overlay.RetryInterval, base.RetryInterval)
	result.PollInterval = pickDuration(overlay.PollInterval, base.PollInterval)
	result.FreshnessWindow = pickDuration(overlay.FreshnessWindow, base.FreshnessWindow)

	result.ServerPort = overlay.ServerPort
	if result.ServerPort == 0 {
		result.ServerPort = base.ServerPort
	}

	// Booleans: overlay wins if true, else base
	result.RotatePhrases = base.RotatePhrases || overlay.RotatePhrases

	result.Hooks = base.Hooks
	if len(overlay.Hooks) > 0 {
		result.Hooks = overlay.Hooks
	}
	result.Sources = base.Sources
	if len(overlay.Sources) > 0 {
		result.Sources = overlay.Sources
	}

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickDuration(overlay, base Duration) Duration {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// SourceBase returns the first source URL that is an absolute http(s) URL.
// Relative static fallback URLs resolve against it, the way a page resolves
// a relative link against its own origin.
func SourceBase(sources []SourceConfig) (*url.URL, bool) {
	for _, s := range sources {
		u, err := url.Parse(s.URL)
		if err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
			return u, true
		}
	}
	return nil, false
}

// ResolveSourceURL returns the URL a source is fetched from. Static fallback
// URLs may be relative or file:// references; every other form is returned
// unchanged.
func ResolveSourceURL(s SourceConfig, sources []SourceConfig) string {
	if s.Kind != SourceStaticFallback {
		return s.URL
	}
	ref, err := url.Parse(s.URL)
	if err != nil || ref.IsAbs() {
		return s.URL
	}
	base, ok := SourceBase(sources)
	if !ok {
		return s.URL
	}
	return base.ResolveReference(ref).String()
}
