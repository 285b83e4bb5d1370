package statistic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulatedClock provides us control over the exact time to advance by.
type simulatedClock struct {
	mux sync.Mutex
	t   time.Time
}

func newSimulatedClock() *simulatedClock {
	return &simulatedClock{t: time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *simulatedClock) Now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.t
}

func (c *simulatedClock) advance(d time.Duration) {
	c.mux.Lock()
	c.t = c.t.Add(d)
	c.mux.Unlock()
}

type recordingRecorder struct {
	durations []time.Duration
}

func (r *recordingRecorder) RecordDuration(d time.Duration) {
	r.durations = append(r.durations, d)
}

func TestStopwatch_Stop_RecordsElapsedOnce(t *testing.T) {
	clock := newSimulatedClock()
	recorder := &recordingRecorder{}
	sw := StartWithClock(recorder, clock)

	clock.advance(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, sw.Elapsed())
	assert.False(t, sw.IsStopped())

	elapsed, err := sw.Stop()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, elapsed)
	assert.True(t, sw.IsStopped())

	clock.advance(time.Second)
	elapsed, err = sw.Stop()
	assert.ErrorIs(t, err, ErrStopwatchStopped)
	assert.Equal(t, 250*time.Millisecond, elapsed)
	assert.Equal(t, 250*time.Millisecond, sw.Elapsed(), "a stopped stopwatch keeps its measurement")

	assert.Equal(t, []time.Duration{250 * time.Millisecond}, recorder.durations)
}

func TestStopwatch_Stop_ClampsBackwardsClock(t *testing.T) {
	clock := newSimulatedClock()
	recorder := &recordingRecorder{}
	sw := StartWithClock(recorder, clock)

	clock.advance(-time.Second)
	elapsed, err := sw.Stop()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), elapsed)
}

func TestStopwatch_Stop_ForwardsToTimerInItsUnit(t *testing.T) {
	clock := newSimulatedClock()
	timer := NewTimerWithUnit(NewMonitorConfig("latency"), Milliseconds)
	sw := StartWithClock(timer, clock)

	clock.advance(1500 * time.Microsecond)
	_, err := sw.Stop()
	require.NoError(t, err)
	_, err = sw.Stop()
	require.Error(t, err)

	assert.Equal(t, StatisticSet{Sum: 1, SampleCount: 1, Minimum: 1, Maximum: 1}, timer.Value())
}

func TestStopwatch_Stop_ConcurrentStopsRecordOnce(t *testing.T) {
	timer := NewTimer(NewMonitorConfig("latency"))
	sw := timer.Start()

	var wg sync.WaitGroup
	var mux sync.Mutex
	var successes int
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sw.Stop(); err == nil {
				mux.Lock()
				successes++
				mux.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, float64(1), timer.Value().SampleCount)
}
