package statistic

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TimeUnit is the granularity a Timer aggregates in.
type TimeUnit int

const (
	Nanoseconds TimeUnit = iota
	Microseconds
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

// DefaultTimeUnit is used when a timer is created without an explicit unit.
const DefaultTimeUnit = Milliseconds

var unitDurations = [...]time.Duration{
	Nanoseconds:  time.Nanosecond,
	Microseconds: time.Microsecond,
	Milliseconds: time.Millisecond,
	Seconds:      time.Second,
	Minutes:      time.Minute,
	Hours:        time.Hour,
	Days:         24 * time.Hour,
}

var unitNames = [...]string{
	Nanoseconds:  "NANOSECONDS",
	Microseconds: "MICROSECONDS",
	Milliseconds: "MILLISECONDS",
	Seconds:      "SECONDS",
	Minutes:      "MINUTES",
	Hours:        "HOURS",
	Days:         "DAYS",
}

func (u TimeUnit) valid() bool {
	return u >= Nanoseconds && u <= Days
}

// Duration returns the length of one unit.
func (u TimeUnit) Duration() time.Duration {
	if !u.valid() {
		panic(fmt.Sprintf("TimeUnit.Duration() expected a known unit; got %d", int(u)))
	}
	return unitDurations[u]
}

func (u TimeUnit) String() string {
	if !u.valid() {
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
	return unitNames[u]
}

// Convert converts duration expressed in source into u. Conversion to a
// coarser unit truncates towards zero; conversion to a finer unit saturates
// at math.MaxInt64 and math.MinInt64 instead of wrapping.
func (u TimeUnit) Convert(duration int64, source TimeUnit) int64 {
	if u == source {
		return duration
	}

	from, to := int64(source.Duration()), int64(u.Duration())
	if from < to {
		return duration / (to / from)
	}

	factor := from / to
	if duration > math.MaxInt64/factor {
		return math.MaxInt64
	}
	if duration < math.MinInt64/factor {
		return math.MinInt64
	}
	return duration * factor
}

// ParseTimeUnit accepts unit names case-insensitively, in either the long
// plural form ("milliseconds") or the short form ("ms").
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nanoseconds", "nanosecond", "ns":
		return Nanoseconds, nil
	case "microseconds", "microsecond", "us", "µs":
		return Microseconds, nil
	case "milliseconds", "millisecond", "ms":
		return Milliseconds, nil
	case "seconds", "second", "s":
		return Seconds, nil
	case "minutes", "minute", "m":
		return Minutes, nil
	case "hours", "hour", "h":
		return Hours, nil
	case "days", "day", "d":
		return Days, nil
	}
	return 0, fmt.Errorf("unknown time unit %q", s)
}
