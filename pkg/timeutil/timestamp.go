// Package timeutil provides integer-second timestamps and durations.
//
// The matcher is deterministic given its inputs: the wall clock is read only
// at the scheduler boundary and passed down as an explicit Timestamp. All
// arithmetic is integer seconds — no floating point, no monotonic-clock
// subtleties.
package timeutil

import (
	"fmt"
	"time"
)

// Timestamp is seconds since the Unix epoch.
type Timestamp int64

// Duration is a signed number of seconds.
type Duration int64

// Now returns the current wall-clock time truncated to whole seconds.
func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

// Seconds constructs a Duration from a number of seconds.
func Seconds(n int64) Duration {
	return Duration(n)
}

// Add returns the timestamp shifted by d.
func (t Timestamp) Add(d Duration) Timestamp {
	return t + Timestamp(d)
}

// Sub returns the duration between two timestamps.
func (t Timestamp) Sub(other Timestamp) Duration {
	return Duration(t - other)
}

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool {
	return t < other
}

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t > other
}

// Time converts to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

func (t Timestamp) String() string {
	return t.Time().Format("2006-01-02 15:04:05Z")
}

// MinTimestamp returns the smaller of two timestamps.
func MinTimestamp(a, b Timestamp) Timestamp {
	if a < b {
		return a
	}
	return b
}

// Std converts to a time.Duration for use at the scheduler boundary
// (sleeps, context deadlines).
func (d Duration) Std() time.Duration {
	return time.Duration(d) * time.Second
}

// Seconds returns the duration as a plain int64.
func (d Duration) Seconds() int64 {
	return int64(d)
}

func (d Duration) String() string {
	return fmt.Sprintf("%ds", int64(d))
}

// CeilTo rounds d up to the next multiple of step. step must be positive.
// Used for the countdown display: seconds-left is always shown as a whole
// number of refresh intervals.
func (d Duration) CeilTo(step Duration) Duration {
	if step <= 0 {
		panic("timeutil: CeilTo step must be positive")
	}
	if d <= 0 {
		return 0
	}
	return (d + step - 1) / step * step
}
