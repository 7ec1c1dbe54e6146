package engine

import (
	"sync"

	"github.com/roach88/khatm/internal/mutation"
)

// envelope is one queued request with the identity stamped at enqueue time.
type envelope struct {
	req    mutation.Request
	id     string
	seq    int64
	ticket *Ticket
}

// requestQueue is the Mutation Queue: a thread-safe, unbounded FIFO with
// many producers and one consumer.
//
// Enqueue never blocks on storage; producers only take the mutex long
// enough to append. The consumer waits on a signal channel so the Run loop
// can also watch its context.
type requestQueue struct {
	mu     sync.Mutex
	items  []envelope
	closed bool
	signal chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		items:  make([]envelope, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue stamps e with the next sequence number and adds it to the back of
// the queue. Stamping under the lock keeps seq order equal to queue order.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(e envelope, seq Sequencer) (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return envelope{}, false
	}

	e.seq = seq.Next()
	e.ticket = newTicket(e.id, e.seq)
	q.items = append(q.items, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return e, true
}

// TryDequeue removes the front envelope without blocking.
func (q *requestQueue) TryDequeue() (envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return envelope{}, false
	}

	e := q.items[0]

	// Clear the slot so the backing array does not pin the request and ticket.
	q.items[0] = envelope{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return e, true
}

// Wait returns a channel that signals when envelopes may be available.
// It is closed by Close.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *requestQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close stops further enqueues and wakes the consumer.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Abandon closes the queue and returns whatever was still queued.
func (q *requestQueue) Abandon() []envelope {
	q.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.items
	q.items = nil
	return rest
}
