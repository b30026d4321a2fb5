package snapshot

import (
	"fmt"
	"time"
)

// State is the inferred activity state of the operator.
type State string

const (
	StateIdle       State = "idle"
	StateThinking   State = "thinking"
	StateWorking    State = "working"
	StateSleeping   State = "sleeping"
	StateDelegating State = "delegating"

	// StateDisconnected is synthesized by viewers when no source answers.
	// The classifier never produces it.
	StateDisconnected State = "disconnected"
)

// ServerStates lists every state a publisher may emit.
var ServerStates = []State{StateIdle, StateThinking, StateWorking, StateSleeping, StateDelegating}

// IsServerState reports whether s may appear in a published snapshot.
func IsServerState(s State) bool {
	for _, known := range ServerStates {
		if s == known {
			return true
		}
	}
	return false
}

// Snapshot is the immutable record of inferred activity at a point in time.
// Values are copied, never mutated in place; a new tick builds a new Snapshot.
type Snapshot struct {
	State     State
	Message   string
	Subagents int
	Timestamp time.Time
}

// New builds a snapshot stamped at ts, truncated to millisecond precision
// so that it survives a trip through the wire format unchanged.
func New(state State, message string, subagents int, ts time.Time) Snapshot {
	if subagents < 0 {
		subagents = 0
	}
	return Snapshot{
		State:     state,
		Message:   message,
		Subagents: subagents,
		Timestamp: ts.UTC().Truncate(time.Millisecond),
	}
}

// SameContent reports whether a and b carry the same observable content.
// Timestamps are ignored: a newer stamp on identical content is not a change.
func SameContent(a, b Snapshot) bool {
	return a.State == b.State && a.Message == b.Message && a.Subagents == b.Subagents
}

// Equal reports whether a and b match field for field, timestamps included.
func Equal(a, b Snapshot) bool {
	return SameContent(a, b) && a.Timestamp.Equal(b.Timestamp)
}

// Validate checks the invariants a published snapshot must hold.
func (s Snapshot) Validate() error {
	if !IsServerState(s.State) {
		return fmt.Errorf("snapshot: state %q cannot be published", s.State)
	}
	if s.Subagents < 0 {
		return fmt.Errorf("snapshot: negative subagent count %d", s.Subagents)
	}
	if s.Subagents > 0 && s.State != StateDelegating && s.State != StateSleeping {
		return fmt.Errorf("snapshot: %d subagents require state delegating or sleeping, got %q", s.Subagents, s.State)
	}
	return nil
}

// Age returns how old the snapshot is relative to now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
