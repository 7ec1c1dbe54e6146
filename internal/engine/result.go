package engine

import (
	"context"

	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
)

// Status is the fate of a processed request.
type Status string

const (
	// StatusApplied means the request committed.
	StatusApplied Status = "applied"
	// StatusDuplicate means a contribution with the same request ID was
	// already in the log; nothing was written.
	StatusDuplicate Status = "duplicate"
	// StatusRejected means validation failed or the topic does not exist;
	// nothing was written.
	StatusRejected Status = "rejected"
	// StatusDropped means the request type is unknown.
	StatusDropped Status = "dropped"
	// StatusFailed means storage kept failing; nothing was written.
	StatusFailed Status = "failed"
)

// Result reports what the processor did with one request.
type Result struct {
	RequestID string        `json:"request_id"`
	Seq       int64         `json:"seq"`
	Kind      mutation.Kind `json:"type"`
	Target    khatm.Key     `json:"target"`
	Status    Status        `json:"status"`
	Attempts  int           `json:"attempts"`

	// Err is set for every status except applied and duplicate. Use
	// khatm.CodeOf to get its code.
	Err error `json:"-"`

	// Snapshot is the topic's state after a topic-level request committed.
	Snapshot *khatm.Snapshot `json:"snapshot,omitempty"`

	// Contribution describes an applied contribution.
	Contribution *ContributionOutcome `json:"contribution,omitempty"`

	// Affected counts the topics a group-wide reset changed.
	Affected int `json:"affected,omitempty"`
}

// ContributionOutcome carries what a collaborator needs to word its reply.
type ContributionOutcome struct {
	// Verse is the first verse counted by a quran contribution.
	Verse            int    `json:"verse_ordinal,omitempty"`
	Completed        bool   `json:"completed"`
	Deactivated      bool   `json:"deactivated"`
	Wrapped          bool   `json:"wrapped"`
	CompletionsAdded int64  `json:"completions_added,omitempty"`
	Overflow         int64  `json:"overflow,omitempty"`
	Message          string `json:"completion_message,omitempty"`
}

// Ticket is handed to the producer of a request and resolved once the
// processor is done with it.
type Ticket struct {
	ID  string
	Seq int64

	done chan struct{}
	res  Result
}

func newTicket(id string, seq int64) *Ticket {
	return &Ticket{ID: id, Seq: seq, done: make(chan struct{})}
}

func (t *Ticket) resolve(r Result) {
	t.res = r
	close(t.done)
}

// Done is closed when the result is available.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the request was processed or ctx ends. The returned
// error is ctx's; the request's own failure is in Result.Err.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
