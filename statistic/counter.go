package statistic

import (
	"math"
	"sync/atomic"
)

// ResettableCounter is a monotonically increasing total which can be read and
// cleared in one step. The zero value is an empty counter.
type ResettableCounter struct {
	value atomic.Int64
}

func (c *ResettableCounter) Increment() {
	c.IncrementBy(1)
}

// IncrementBy adds delta to the counter. Negative deltas are ignored and the
// total saturates at math.MaxInt64 rather than wrapping.
func (c *ResettableCounter) IncrementBy(delta int64) {
	if delta <= 0 {
		return
	}
	for {
		prev := c.value.Load()
		next := prev + delta
		if next < prev {
			next = math.MaxInt64
		}
		if c.value.CompareAndSwap(prev, next) {
			return
		}
	}
}

func (c *ResettableCounter) Value() int64 {
	return c.value.Load()
}

func (c *ResettableCounter) ValueAndReset() int64 {
	return c.value.Swap(0)
}
