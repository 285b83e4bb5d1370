package statistic

import "time"

// Clock reads the current time. Stopwatches take one so tests can control
// elapsed time exactly.
type Clock interface {
	Now() time.Time
}

type RealtimeClock struct{}

func NewRealtimeClock() RealtimeClock {
	return RealtimeClock{}
}

// Now carries a monotonic reading, so Sub between two Now values never goes
// backwards on wall clock adjustments.
func (RealtimeClock) Now() time.Time { return time.Now() }
