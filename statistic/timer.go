package statistic

import (
	"fmt"
	"sync"
	"time"
)

const unitTagKey = "unit"

// Timer aggregates durations into a StatisticSet: total, count, minimum and
// maximum, all in one fixed TimeUnit. The four sub-aggregates are only ever
// touched under mux, so a snapshot never mixes samples from two windows.
type Timer struct {
	config MonitorConfig
	unit   TimeUnit

	// mux guards every read, update and reset of the four fields below.
	mux       sync.Mutex
	totalTime ResettableCounter
	count     ResettableCounter
	min       *MinGauge
	max       *MaxGauge

	// rejected counts negative samples dropped by Record.
	rejected ResettableCounter
}

// NewTimer creates a timer reporting in milliseconds.
func NewTimer(config MonitorConfig) *Timer {
	return NewTimerWithUnit(config, DefaultTimeUnit)
}

// NewTimerWithUnit creates a timer reporting in unit. A "unit" tag naming the
// unit is added to config.
func NewTimerWithUnit(config MonitorConfig, unit TimeUnit) *Timer {
	if !unit.valid() {
		panic(fmt.Sprintf("NewTimerWithUnit() expected a known unit; got %d", int(unit)))
	}
	return &Timer{
		config: TimerConfig(config, unit),
		unit:   unit,
		min:    NewMinGauge(),
		max:    NewMaxGauge(),
	}
}

// TimerConfig returns the identity a timer created from config and unit
// reports.
func TimerConfig(config MonitorConfig, unit TimeUnit) MonitorConfig {
	return config.WithAdditionalTag(unitTagKey, unit.String())
}

func (t *Timer) Config() MonitorConfig {
	return t.config
}

func (t *Timer) TimeUnit() TimeUnit {
	return t.unit
}

// Start returns a running stopwatch which records to t when stopped.
func (t *Timer) Start() *Stopwatch {
	return Start(t)
}

// Record adds a sample already expressed in the timer's unit. Negative
// samples are dropped and counted in Rejected.
func (t *Timer) Record(duration int64) {
	if duration < 0 {
		t.rejected.Increment()
		return
	}

	t.mux.Lock()
	t.totalTime.IncrementBy(duration)
	t.count.Increment()
	t.min.Update(duration)
	t.max.Update(duration)
	t.mux.Unlock()
}

// RecordUnit converts duration from unit into the timer's unit, then records
// it.
func (t *Timer) RecordUnit(duration int64, unit TimeUnit) {
	if duration < 0 {
		t.rejected.Increment()
		return
	}
	t.Record(t.unit.Convert(duration, unit))
}

func (t *Timer) RecordDuration(d time.Duration) {
	t.RecordUnit(int64(d), Nanoseconds)
}

// Rejected returns the number of negative samples dropped since creation.
func (t *Timer) Rejected() int64 {
	return t.rejected.Value()
}

func (t *Timer) Value() StatisticSet {
	t.mux.Lock()
	defer t.mux.Unlock()
	return toStatisticSet(t.totalTime.Value(), t.count.Value(), t.min.Value(), t.max.Value())
}

func (t *Timer) ValueAndReset() StatisticSet {
	t.mux.Lock()
	defer t.mux.Unlock()
	return toStatisticSet(t.totalTime.ValueAndReset(), t.count.ValueAndReset(), t.min.ValueAndReset(), t.max.ValueAndReset())
}

func toStatisticSet(total, count, min, max int64) StatisticSet {
	if count == 0 {
		return StatisticSet{}
	}
	return StatisticSet{
		Sum:         float64(total),
		SampleCount: float64(count),
		Minimum:     float64(min),
		Maximum:     float64(max),
	}
}

type timerState struct {
	total, count, min, max int64
}

func (t *Timer) state() timerState {
	t.mux.Lock()
	defer t.mux.Unlock()
	return timerState{
		total: t.totalTime.Value(),
		count: t.count.Value(),
		min:   t.min.Value(),
		max:   t.max.Value(),
	}
}

// Equal reports whether both timers share a config and currently hold the
// same aggregates. Each timer is read under its own lock, so the comparison
// is only meaningful when neither is being recorded to.
func (t *Timer) Equal(other *Timer) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	return t.config.Equal(other.config) && t.state() == other.state()
}

func (t *Timer) String() string {
	s := t.state()
	return fmt.Sprintf("Timer{config=%s, totalTime=%d, count=%d, min=%d, max=%d}", t.config, s.total, s.count, s.min, s.max)
}
