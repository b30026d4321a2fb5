// Package poller is the viewer side: it reads the current snapshot from a
// ranked list of sources and emits what a display should show.
//
// Each tick walks the sources in order. Attempts are sequential and each
// runs under its source timeout; the first good payload wins. When every
// source fails the display switches to disconnected.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hpungsan/kiki/internal/snapshot"
)

// Default tick settings.
const (
	DefaultInterval  = 2 * time.Second
	DefaultFreshness = 2 * time.Minute
)

// Display is what the render boundary receives.
type Display struct {
	State     snapshot.State `json:"state"`
	Message   string         `json:"message"`
	Subagents int            `json:"subagents"`
	Connected bool           `json:"connected"`
}

// Renderer receives a Display whenever it changes.
type Renderer interface {
	Render(d Display)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(d Display)

// Render calls f(d).
func (f RendererFunc) Render(d Display) { f(d) }

// Connection describes the poller's link to its sources.
type Connection struct {
	Reachable bool `json:"reachable"`
	// ActiveSourceKind is the kind of the source that answered the last
	// tick. Empty while unreachable.
	ActiveSourceKind string `json:"active_source_kind,omitempty"`
	// ActiveSourceURL is that source's configured URL.
	ActiveSourceURL string `json:"active_source_url,omitempty"`
	// LastSuccessfulFetch is nil until some source has answered.
	LastSuccessfulFetch *time.Time `json:"last_successful_fetch,omitempty"`
}

// Options holds the optional Poller settings.
type Options struct {
	// Interval defaults to DefaultInterval.
	Interval time.Duration
	// Freshness defaults to DefaultFreshness.
	Freshness time.Duration
	// Fetcher defaults to an HTTPFetcher on http.DefaultClient.
	Fetcher Fetcher
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// sourceState is the per-source memory carried between ticks.
type sourceState struct {
	cooldownUntil time.Time
	lastGood      snapshot.Decoded
	lastGoodAt    time.Time
	hasGood       bool
	lastOutcome   Outcome
}

// Poller runs the source fallback state machine.
type Poller struct {
	sources  []Source
	states   []sourceState
	renderer Renderer
	opts     Options
	logger   *log.Logger

	mu          sync.Mutex
	conn        Connection
	display     Display
	hasDisplay  bool
	lastGood    snapshot.Snapshot
	lastGoodTS  bool
	hasLastGood bool

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Poller over sources in rank order.
func New(sources []Source, r Renderer, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &HTTPFetcher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if r == nil {
		r = RendererFunc(func(Display) {})
	}
	return &Poller{
		sources:  sources,
		states:   make([]sourceState, len(sources)),
		renderer: r,
		opts:     opts,
		logger:   opts.Logger,
		stop:     make(chan struct{}),
	}
}

// Connection returns the current connection state.
func (p *Poller) Connection() Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Display returns the last emitted display and whether one was emitted.
func (p *Poller) Display() (Display, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.display, p.hasDisplay
}

// Tick runs one pass over the sources. It renders and reports true only
// when the display changed.
func (p *Poller) Tick(ctx context.Context) (Display, bool) {
	now := p.opts.Now()
	idx, res := p.attempt(ctx, now)

	p.mu.Lock()
	var next Display
	if idx >= 0 {
		next = p.reachedLocked(idx, res, now)
	} else {
		next = p.unreachableLocked(now)
	}
	changed := !p.hasDisplay || next != p.display
	p.display = next
	p.hasDisplay = true
	p.mu.Unlock()

	if changed {
		p.renderer.Render(next)
	}
	return next, changed
}

// attempt tries sources in order and returns the index of the first ok
// one, or -1.
func (p *Poller) attempt(ctx context.Context, now time.Time) (int, Result) {
	for i, src := range p.sources {
		st := &p.states[i]
		if now.Before(st.cooldownUntil) {
			continue
		}
		if src.MinInterval > 0 && st.hasGood && now.Sub(st.lastGoodAt) < src.MinInterval {
			return i, Result{Outcome: OutcomeOK, Decoded: st.lastGood, Cached: true}
		}

		actx, cancel := context.WithTimeout(ctx, src.Timeout)
		res := p.opts.Fetcher.Fetch(actx, src, now)
		cancel()

		if res.Outcome == OutcomeOK {
			if st.lastOutcome != "" && st.lastOutcome != OutcomeOK {
				p.logger.Printf("poll %s: recovered", src.URL)
			}
			st.lastOutcome = OutcomeOK
			st.lastGood = res.Decoded
			st.lastGoodAt = now
			st.hasGood = true
			return i, res
		}

		if res.Outcome != st.lastOutcome {
			p.logger.Printf("poll %s: %s: %v", src.URL, res.Outcome, res.Err)
		}
		st.lastOutcome = res.Outcome
		if src.Cooldown > 0 {
			st.cooldownUntil = now.Add(src.Cooldown)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return -1, Result{}
}

func (p *Poller) reachedLocked(idx int, res Result, now time.Time) Display {
	src := p.sources[idx]
	fetchedAt := now
	if res.Cached {
		fetchedAt = p.states[idx].lastGoodAt
	}
	p.conn = Connection{
		Reachable:           true,
		ActiveSourceKind:    src.Kind,
		ActiveSourceURL:     src.URL,
		LastSuccessfulFetch: &fetchedAt,
	}

	snap := res.Decoded.Snapshot
	p.lastGood = snap
	p.lastGoodTS = res.Decoded.HasTimestamp
	p.hasLastGood = true

	if res.Decoded.HasTimestamp && snap.Age(now) > p.opts.Freshness {
		if p.hasDisplay && p.display.State == snapshot.StateIdle {
			kept := p.display
			kept.Connected = true
			return kept
		}
		return Display{State: snapshot.StateIdle, Connected: true}
	}
	return Display{
		State:     snap.State,
		Message:   snap.Message,
		Subagents: snap.Subagents,
		Connected: true,
	}
}

func (p *Poller) unreachableLocked(now time.Time) Display {
	p.conn.Reachable = false
	p.conn.ActiveSourceKind = ""
	p.conn.ActiveSourceURL = ""

	next := Display{State: snapshot.StateDisconnected}
	if p.hasDisplay && !p.lastGoodAged(now) {
		next.Message = p.display.Message
		next.Subagents = p.display.Subagents
	}
	return next
}

// lastGoodAged reports whether the last good snapshot is older than the
// freshness window. Without a timestamp the fetch time stands in.
func (p *Poller) lastGoodAged(now time.Time) bool {
	if !p.hasLastGood || p.conn.LastSuccessfulFetch == nil {
		return true
	}
	ref := *p.conn.LastSuccessfulFetch
	if p.lastGoodTS {
		ref = p.lastGood.Timestamp
	}
	return now.Sub(ref) > p.opts.Freshness
}

// Run ticks immediately, then every interval until ctx is cancelled or
// Stop is called.
func (p *Poller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
