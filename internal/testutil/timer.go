package testutil

import (
	"sync"
	"time"
)

// FakeTimer is a backoff.Timer that fires immediately and records every
// requested wait, so retry schedules can be asserted without sleeping.
type FakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

// NewFakeTimer creates a FakeTimer.
func NewFakeTimer() *FakeTimer {
	return &FakeTimer{c: make(chan time.Time, 1)}
}

// Start records d and fires.
func (t *FakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()

	select {
	case t.c <- time.Time{}:
	default:
	}
}

// Stop is a no-op.
func (t *FakeTimer) Stop() {}

// C returns the firing channel.
func (t *FakeTimer) C() <-chan time.Time {
	return t.c
}

// Waits returns the durations passed to Start, in order.
func (t *FakeTimer) Waits() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}
