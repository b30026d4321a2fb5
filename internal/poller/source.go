package poller

import (
	"time"

	"github.com/hpungsan/kiki/internal/config"
)

// Per-kind defaults applied when a source leaves the field unset.
const (
	DefaultLocalTimeout  = 800 * time.Millisecond
	DefaultStaticTimeout = 2 * time.Second
	DefaultRemoteTimeout = 5 * time.Second

	DefaultLocalCooldown     = 30 * time.Second
	DefaultRemoteMinInterval = 30 * time.Second
)

// Source is one ranked place the poller can read a snapshot from.
type Source struct {
	Kind string
	URL  string

	Timeout time.Duration
	// Cooldown, when positive, skips the source for this long after a failure.
	Cooldown time.Duration
	// MinInterval, when positive, reuses the last good payload instead of
	// fetching again within the interval.
	MinInterval time.Duration
	Token       string
}

// IsLocal reports whether the source is the local endpoint.
func (s Source) IsLocal() bool {
	return s.Kind == config.SourceLocal
}

// SourcesFromConfig converts configured sources, filling per-kind defaults
// and resolving relative static fallback URLs. Order is preserved; it is the
// fallback rank.
func SourcesFromConfig(cfgs []config.SourceConfig) []Source {
	out := make([]Source, 0, len(cfgs))
	for _, sc := range cfgs {
		src := Source{
			Kind:        sc.Kind,
			URL:         config.ResolveSourceURL(sc, cfgs),
			Timeout:     sc.Timeout.Std(),
			Cooldown:    sc.Cooldown.Std(),
			MinInterval: sc.MinInterval.Std(),
			Token:       sc.Token,
		}
		switch sc.Kind {
		case config.SourceLocal:
			if src.Timeout <= 0 {
				src.Timeout = DefaultLocalTimeout
			}
			if src.Cooldown <= 0 {
				src.Cooldown = DefaultLocalCooldown
			}
		case config.SourceStaticFallback:
			if src.Timeout <= 0 {
				src.Timeout = DefaultStaticTimeout
			}
		case config.SourceRemoteMirror:
			if src.Timeout <= 0 {
				src.Timeout = DefaultRemoteTimeout
			}
			if src.MinInterval <= 0 {
				src.MinInterval = DefaultRemoteMinInterval
			}
		default:
			if src.Timeout <= 0 {
				src.Timeout = DefaultRemoteTimeout
			}
		}
		out = append(out, src)
	}
	return out
}
