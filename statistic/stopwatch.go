package statistic

import (
	"errors"
	"sync"
	"time"
)

// ErrStopwatchStopped is returned by Stop when the stopwatch has already
// forwarded its measurement.
var ErrStopwatchStopped = errors.New("stopwatch already stopped")

// Stopwatch measures one timing and forwards it to a Recorder exactly once.
type Stopwatch struct {
	clock    Clock
	recorder Recorder
	start    time.Time

	mux     sync.Mutex
	stopped bool
	elapsed time.Duration
}

// Start returns a running stopwatch bound to r.
func Start(r Recorder) *Stopwatch {
	return StartWithClock(r, NewRealtimeClock())
}

func StartWithClock(r Recorder, clock Clock) *Stopwatch {
	return &Stopwatch{
		clock:    clock,
		recorder: r,
		start:    clock.Now(),
	}
}

// Stop records the elapsed time to the bound Recorder and returns it. Only the
// first call records; later calls return the first measurement along with
// ErrStopwatchStopped.
func (s *Stopwatch) Stop() (time.Duration, error) {
	s.mux.Lock()
	if s.stopped {
		elapsed := s.elapsed
		s.mux.Unlock()
		return elapsed, ErrStopwatchStopped
	}
	s.elapsed = s.since()
	s.stopped = true
	elapsed := s.elapsed
	s.mux.Unlock()

	s.recorder.RecordDuration(elapsed)
	return elapsed, nil
}

// Elapsed returns the time since Start, or the recorded measurement once
// stopped.
func (s *Stopwatch) Elapsed() time.Duration {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.stopped {
		return s.elapsed
	}
	return s.since()
}

func (s *Stopwatch) IsStopped() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.stopped
}

func (s *Stopwatch) since() time.Duration {
	d := s.clock.Now().Sub(s.start)
	// A simulated clock may be moved backwards; a real monotonic one cannot.
	if d < 0 {
		return 0
	}
	return d
}
