package engine

import "sync/atomic"

// Sequencer hands out the monotonic sequence numbers stamped on requests.
// Implemented by Clock (production) and testutil.DeterministicClock (tests).
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock.
//
// Every request is stamped with a strictly increasing seq when it is
// enqueued, so seq order is arrival order and the contribution log can be
// read back in the order the processor applied it.
//
// Safe for concurrent use: producers call Next from their own goroutines.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start, typically the highest
// seq found in the contribution log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
