package auction

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultRoundDuration = 600 * time.Second

// SecondsLeft is the whole number of seconds until endTime, rounded up and
// never negative. Every reader holding the same endTime gets the same value
// at the same instant, however often it polls.
func SecondsLeft(endTime, now time.Time) int64 {
	d := endTime.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

// roundClock anchors a round to an absolute deadline.
type roundClock struct {
	clk      clockwork.Clock
	duration time.Duration
}

// fix sets the deadline of a round that has none yet. It reports whether the
// state changed; a deadline already present is never recomputed.
func (c roundClock) fix(st *State) bool {
	if st.EndTime != nil {
		return false
	}
	end := c.clk.Now().Add(c.duration).UTC()
	st.EndTime = &end
	return true
}

func (c roundClock) remaining(st State) int64 {
	if st.EndTime == nil {
		return c.fullSeconds()
	}
	return SecondsLeft(*st.EndTime, c.clk.Now())
}

func (c roundClock) fullSeconds() int64 {
	return int64(c.duration / time.Second)
}
