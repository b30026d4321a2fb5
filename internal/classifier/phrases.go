package classifier

import (
	"time"

	"github.com/hpungsan/kiki/internal/snapshot"
)

// Phrases maps each state to its candidate messages. The first entry is
// the fixed phrase; the rest are only used with rotation on.
type Phrases map[snapshot.State][]string

// DefaultPhrases returns the stock message table. Messages are lower-case.
func DefaultPhrases() Phrases {
	return Phrases{
		snapshot.StateWorking: {
			"crafting logic...",
			"drafting thoughts...",
			"absorbing information...",
		},
		snapshot.StateThinking: {
			"contemplating architecture...",
			"weighing options...",
			"connecting the dots...",
		},
		snapshot.StateIdle:     {"observing the digital horizon..."},
		snapshot.StateSleeping: {"dormant."},
	}
}

// pick returns the message for state. With rotate on, the index advances
// once per wall-clock minute so a steady state does not republish every tick.
func (p Phrases) pick(state snapshot.State, now time.Time, rotate bool) string {
	set := p[state]
	if len(set) == 0 {
		return ""
	}
	if !rotate || len(set) == 1 {
		return set[0]
	}
	minute := now.Unix() / 60
	if minute < 0 {
		minute = -minute
	}
	return set[int(minute%int64(len(set)))]
}
