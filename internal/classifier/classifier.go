package classifier

import (
	"fmt"
	"math"
	"time"

	"github.com/hpungsan/kiki/internal/signal"
	"github.com/hpungsan/kiki/internal/snapshot"
)

// NoSignal is the elapsed time used when no signal could be read.
const NoSignal = time.Duration(math.MaxInt64)

// Thresholds are the time windows of the decision ladder.
type Thresholds struct {
	Burst  time.Duration // below: working
	Settle time.Duration // below: thinking
	Sleep  time.Duration // above: sleeping
}

// DefaultThresholds returns the stock windows.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Burst:  10 * time.Second,
		Settle: 60 * time.Second,
		Sleep:  15 * time.Minute,
	}
}

// Decide maps the time since the last signal onto a base state.
// The ladder is evaluated in order and the first match wins.
func Decide(elapsed time.Duration, th Thresholds) snapshot.State {
	switch {
	case elapsed < th.Burst:
		return snapshot.StateWorking
	case elapsed < th.Settle:
		return snapshot.StateThinking
	case elapsed > th.Sleep:
		return snapshot.StateSleeping
	default:
		return snapshot.StateIdle
	}
}

// Elapsed returns the time between last and now, or NoSignal when last is
// zero. A signal from the future counts as happening now.
func Elapsed(last, now time.Time) time.Duration {
	if last.IsZero() {
		return NoSignal
	}
	d := now.Sub(last)
	if d < 0 {
		return 0
	}
	return d
}

// DelegatingMessage is the message shown while workers are active.
func DelegatingMessage(workers int) string {
	if workers == 1 {
		return "delegating to 1 helper"
	}
	return fmt.Sprintf("delegating to %d helpers", workers)
}

// Classifier turns signal readings into snapshots.
type Classifier struct {
	thresholds Thresholds
	phrases    Phrases
	rotate     bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPhrases replaces the message table.
func WithPhrases(p Phrases) Option {
	return func(c *Classifier) { c.phrases = p }
}

// WithRotation draws working and thinking messages from their phrase sets.
func WithRotation(on bool) Option {
	return func(c *Classifier) { c.rotate = on }
}

// New creates a Classifier.
func New(th Thresholds, opts ...Option) *Classifier {
	c := &Classifier{
		thresholds: th,
		phrases:    DefaultPhrases(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify builds the snapshot for reading r observed at now.
func (c *Classifier) Classify(r signal.Reading, now time.Time) snapshot.Snapshot {
	state := Decide(Elapsed(r.LastSignal, now), c.thresholds)
	workers := r.Workers
	if workers < 0 {
		workers = 0
	}

	if workers > 0 && state != snapshot.StateSleeping {
		return snapshot.New(snapshot.StateDelegating, DelegatingMessage(workers), workers, now)
	}
	return snapshot.New(state, c.phrases.pick(state, now, c.rotate), workers, now)
}
