// Package clock supplies the millisecond time source the token buckets
// reconcile against.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in whole milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

// System reads the wall clock.
type System struct{}

// NowMillis returns time.Now() in Unix milliseconds.
func (System) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// NowMillis returns the current wall-clock time in Unix milliseconds.
func NowMillis() int64 {
	return System{}.NowMillis()
}

// Func adapts a plain function to the Clock interface.
type Func func() int64

// NowMillis calls f.
func (f Func) NowMillis() int64 {
	return f()
}

// Manual is a clock that only moves when told to.
// It is safe for concurrent use.
type Manual struct {
	now atomic.Int64
}

// NewManual creates a manual clock reading start.
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// NowMillis returns the current manual reading.
func (m *Manual) NowMillis() int64 {
	return m.now.Load()
}

// Set moves the clock to millis.
func (m *Manual) Set(millis int64) {
	m.now.Store(millis)
}

// Advance moves the clock forward by d, truncated to whole milliseconds,
// and returns the new reading.
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(d.Milliseconds())
}

// Or returns c, or System when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
