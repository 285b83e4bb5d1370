package statistic

import (
	"fmt"
	"time"
)

// StatisticSet is the four-field aggregate of one window, expressed in the
// unit of the timer which produced it. An empty set (SampleCount == 0) has
// every field at 0; the gauge sentinels are never reported.
type StatisticSet struct {
	Sum         float64 `json:"sum"`
	SampleCount float64 `json:"sampleCount"`
	Minimum     float64 `json:"minimum"`
	Maximum     float64 `json:"maximum"`
}

func (s StatisticSet) IsEmpty() bool {
	return s.SampleCount == 0
}

// Mean returns Sum / SampleCount, or 0 for an empty set.
func (s StatisticSet) Mean() float64 {
	if s.IsEmpty() {
		return 0
	}
	return s.Sum / s.SampleCount
}

func (s StatisticSet) String() string {
	return fmt.Sprintf("sum: %.0f, count: %.0f, min: %.0f, max: %.0f", s.Sum, s.SampleCount, s.Minimum, s.Maximum)
}

// Recorder is the capability a Stopwatch needs: something to forward an
// elapsed duration to.
type Recorder interface {
	RecordDuration(d time.Duration)
}

// Snapshotter is the capability an exporter needs.
type Snapshotter interface {
	Value() StatisticSet         // Value reads the current window without resetting it.
	ValueAndReset() StatisticSet // ValueAndReset reads the current window and starts a new one.
}
