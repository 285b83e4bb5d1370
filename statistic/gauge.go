package statistic

import (
	"math"
	"sync/atomic"
)

// Sentinels reported by the gauges while no sample has been seen. A sample
// equal to the sentinel is indistinguishable from no sample; Timer relies on
// its count, not on the gauges, to decide whether a window is empty.
const (
	MinGaugeEmpty int64 = math.MaxInt64
	MaxGaugeEmpty int64 = math.MinInt64
)

// MinGauge tracks the smallest sample seen since construction or the last
// reset. Use NewMinGauge; the zero value is not empty.
type MinGauge struct {
	value atomic.Int64
}

func NewMinGauge() *MinGauge {
	g := &MinGauge{}
	g.value.Store(MinGaugeEmpty)
	return g
}

func (g *MinGauge) Update(sample int64) {
	for {
		prev := g.value.Load()
		if sample >= prev {
			return
		}
		if g.value.CompareAndSwap(prev, sample) {
			return
		}
	}
}

// Value returns the current minimum, or MinGaugeEmpty.
func (g *MinGauge) Value() int64 {
	return g.value.Load()
}

func (g *MinGauge) ValueAndReset() int64 {
	return g.value.Swap(MinGaugeEmpty)
}

func (g *MinGauge) IsEmpty() bool {
	return g.value.Load() == MinGaugeEmpty
}

// MaxGauge tracks the largest sample seen since construction or the last
// reset. Use NewMaxGauge; the zero value is not empty.
type MaxGauge struct {
	value atomic.Int64
}

func NewMaxGauge() *MaxGauge {
	g := &MaxGauge{}
	g.value.Store(MaxGaugeEmpty)
	return g
}

func (g *MaxGauge) Update(sample int64) {
	for {
		prev := g.value.Load()
		if sample <= prev {
			return
		}
		if g.value.CompareAndSwap(prev, sample) {
			return
		}
	}
}

// Value returns the current maximum, or MaxGaugeEmpty.
func (g *MaxGauge) Value() int64 {
	return g.value.Load()
}

func (g *MaxGauge) ValueAndReset() int64 {
	return g.value.Swap(MaxGaugeEmpty)
}

func (g *MaxGauge) IsEmpty() bool {
	return g.value.Load() == MaxGaugeEmpty
}
