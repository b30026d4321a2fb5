package classifier

import (
	"context"
	"log"
	"time"

	"github.com/hpungsan/kiki/internal/signal"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// Sink receives snapshots whose content changed. Publish must not block.
type Sink interface {
	Publish(s snapshot.Snapshot)
}

// Watcher owns the classification tick loop. It is the only goroutine
// that touches prev.
type Watcher struct {
	classifier *Classifier
	reader     signal.Reader
	sink       Sink
	interval   time.Duration
	now        func() time.Time
	logger     *log.Logger

	prev    snapshot.Snapshot
	hasPrev bool
}

// WatcherOptions holds the optional Watcher collaborators.
type WatcherOptions struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewWatcher creates a Watcher ticking every interval.
func NewWatcher(c *Classifier, r signal.Reader, sink Sink, interval time.Duration, opts WatcherOptions) *Watcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Watcher{
		classifier: c,
		reader:     r,
		sink:       sink,
		interval:   interval,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// Tick classifies once and forwards the snapshot when its content differs
// from the previously forwarded one. It reports whether it forwarded.
func (w *Watcher) Tick() (snapshot.Snapshot, bool) {
	now := w.now()
	next := w.classifier.Classify(w.reader.Read(now), now)

	// Published timestamps never go backwards, even across a clock step.
	if w.hasPrev && next.Timestamp.Before(w.prev.Timestamp) {
		next.Timestamp = w.prev.Timestamp
	}
	if w.hasPrev && snapshot.SameContent(w.prev, next) {
		return next, false
	}
	if w.hasPrev {
		w.logger.Printf("status %s -> %s (subagents=%d)", w.prev.State, next.State, next.Subagents)
	} else {
		w.logger.Printf("status %s (subagents=%d)", next.State, next.Subagents)
	}
	w.prev = next
	w.hasPrev = true
	w.sink.Publish(next)
	return next, true
}

// Run ticks immediately, then every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}
