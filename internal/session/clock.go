package session

import "sync/atomic"

// Clock is a monotonic logical clock. Every event appended to a session
// is stamped with the next value, so versions order events across all
// sessions opened by the same Manager.
//
// Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start. Used when replaying a
// journal so new versions continue the recorded sequence.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last version handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
