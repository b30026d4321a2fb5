// Package publisher persists the current snapshot and fans it out to the
// configured distribution hooks.
//
// Publish never blocks. Snapshots land in a depth-1 pending slot that a
// single writer goroutine drains; a newer snapshot replaces a queued one.
// After each successful write the record is handed to a single hook worker
// through its own depth-1 slot, so a slow or failing mirror never delays the
// next write and mirrors receive publications in order.
package publisher

import (
	"context"
	"crypto/rand"
	"log"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/kiki/internal/snapshot"
	"github.com/hpungsan/kiki/internal/store"
)

// DefaultHookTimeout bounds the hooks run for one publication.
const DefaultHookTimeout = 30 * time.Second

// Options holds the optional Publisher settings.
type Options struct {
	// RetryInterval is how long a failed write waits before retrying.
	// Zero disables retries.
	RetryInterval time.Duration
	// HookTimeout bounds the hooks run for one publication. Defaults to
	// DefaultHookTimeout.
	HookTimeout time.Duration
	// Logger defaults to log.Default().
	Logger *log.Logger
	// NewID defaults to a fresh ULID.
	NewID func() string
}

// Stats counts what the publisher has done since it started.
type Stats struct {
	Accepted      int `json:"accepted"`
	Duplicates    int `json:"duplicates"`
	Superseded    int `json:"superseded"`
	Writes        int `json:"writes"`
	WriteFailures int `json:"write_failures"`
	HookFailures  int `json:"hook_failures"`
	HooksSkipped  int `json:"hooks_skipped"`
}

// Publisher is the single writer of the current snapshot.
type Publisher struct {
	store  store.Store
	hooks  []Hook
	opts   Options
	logger *log.Logger

	mu        sync.Mutex
	pending   *store.Record
	inflight  *store.Record
	persisted *store.Record
	closed    bool
	stats     Stats
	retry     *time.Timer

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	// hookPending is the newest persisted record the hook worker has not
	// started on yet. Guarded by mu.
	hookPending *store.Record
	hookWake    chan struct{}
	hookStop    chan struct{}
	hookDone    chan struct{}

	closeOnce sync.Once
}

// New starts a Publisher writing to st. Call Close to stop it.
func New(st store.Store, hooks []Hook, opts Options) *Publisher {
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = DefaultHookTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	p := &Publisher{
		store:  st,
		hooks:  hooks,
		opts:   opts,
		logger: opts.Logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		hookWake: make(chan struct{}, 1),
		hookStop: make(chan struct{}),
		hookDone: make(chan struct{}),
	}
	go p.loop()
	go p.hookLoop()
	return p
}

// newID generates a new ULID.
func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Publish queues s for persistence. Content equal to the newest queued,
// in-flight or persisted copy is dropped. Returns immediately.
func (p *Publisher) Publish(s snapshot.Snapshot) {
	p.Submit(s)
}

// Submit is Publish reporting whether s was accepted.
func (p *Publisher) Submit(s snapshot.Snapshot) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if ref := p.newestLocked(); ref != nil && snapshot.SameContent(ref.Snapshot, s) {
		p.stats.Duplicates++
		p.mu.Unlock()
		return false
	}
	if p.pending != nil {
		p.stats.Superseded++
	}
	p.pending = &store.Record{ID: p.opts.NewID(), Snapshot: s}
	p.stats.Accepted++
	p.mu.Unlock()

	p.signal()
	return true
}

// newestLocked returns the copy new publications are compared against.
func (p *Publisher) newestLocked() *store.Record {
	switch {
	case p.pending != nil:
		return p.pending
	case p.inflight != nil:
		return p.inflight
	default:
		return p.persisted
	}
}

func (p *Publisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Current returns the last successfully persisted record.
func (p *Publisher) Current() (store.Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.persisted == nil {
		return store.Record{}, false
	}
	return *p.persisted, true
}

// Stats returns a copy of the counters.
func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Publisher) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			// Drain whatever is still queued, once, without retrying.
			p.flush(false)
			return
		case <-p.wake:
			p.flush(true)
		}
	}
}

// flush writes the pending record, if any.
func (p *Publisher) flush(allowRetry bool) {
	p.mu.Lock()
	rec := p.pending
	p.pending = nil
	p.inflight = rec
	p.mu.Unlock()
	if rec == nil {
		return
	}

	err := p.store.Save(context.Background(), *rec)

	p.mu.Lock()
	p.inflight = nil
	if err != nil {
		p.stats.WriteFailures++
		requeue := allowRetry && p.pending == nil && p.opts.RetryInterval > 0
		if requeue {
			p.pending = rec
			p.armRetryLocked()
		}
		p.mu.Unlock()
		p.logger.Printf("publish %s: write failed: %v", rec.ID, err)
		return
	}
	p.stats.Writes++
	p.persisted = rec
	p.mu.Unlock()

	p.logger.Printf("publish %s: %s (subagents=%d)", rec.ID, rec.Snapshot.State, rec.Snapshot.Subagents)
	p.queueHooks(rec)
}

func (p *Publisher) armRetryLocked() {
	if p.retry != nil {
		p.retry.Stop()
	}
	p.retry = time.AfterFunc(p.opts.RetryInterval, p.signal)
}

// queueHooks hands rec to the hook worker, replacing a record it has not
// started on yet.
func (p *Publisher) queueHooks(rec *store.Record) {
	if len(p.hooks) == 0 {
		return
	}
	p.mu.Lock()
	if p.hookPending != nil {
		p.stats.HooksSkipped++
	}
	p.hookPending = rec
	p.mu.Unlock()

	select {
	case p.hookWake <- struct{}{}:
	default:
	}
}

func (p *Publisher) hookLoop() {
	defer close(p.hookDone)
	for {
		select {
		case <-p.hookStop:
			p.runHooks()
			return
		case <-p.hookWake:
			p.runHooks()
		}
	}
}

// runHooks runs every hook, in order, for the queued record if any.
func (p *Publisher) runHooks() {
	p.mu.Lock()
	rec := p.hookPending
	p.hookPending = nil
	p.mu.Unlock()
	if rec == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.HookTimeout)
	defer cancel()

	for _, h := range p.hooks {
		if err := h.Run(ctx, *rec); err != nil {
			p.mu.Lock()
			p.stats.HookFailures++
			p.mu.Unlock()
			p.logger.Printf("publish %s: hook %s failed: %v", rec.ID, h.Name(), err)
			continue
		}
		p.logger.Printf("publish %s: hook %s ok", rec.ID, h.Name())
	}
}

// Close stops intake, writes the pending snapshot if there is one, and
// waits for the hook worker to finish the newest queued record.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.retry != nil {
			p.retry.Stop()
		}
		p.mu.Unlock()

		close(p.stop)
		<-p.done
		close(p.hookStop)
		<-p.hookDone
	})
	return nil
}
