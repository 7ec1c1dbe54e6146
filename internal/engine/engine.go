package engine

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
	"github.com/roach88/khatm/internal/verse"
)

// Engine is the Mutation Processor: the single writer of the Counter Store.
//
// Thread-safety model:
//   - Enqueue, EnqueueWithID, Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - Requests are applied in enqueue order, one at a time
//   - A request either commits entirely or writes nothing
//   - One request's failure never stops the loop
type Engine struct {
	repo    khatm.Repository
	verses  *verse.Index
	presets map[khatm.Type]khatm.Preset

	queue  *requestQueue
	seq    Sequencer
	ids    IDGenerator
	logger *slog.Logger

	retryPolicy RetryPolicy
	timer       backoff.Timer // nil uses real timers
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPresets sets the settings applied by start_khatm_* requests.
// Types without an entry start with zero settings.
func WithPresets(p map[khatm.Type]khatm.Preset) EngineOption {
	return func(e *Engine) {
		e.presets = p
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.retryPolicy = p
	}
}

// WithTimer replaces the timer used between retries. Tests pass a fake
// timer to observe the waits without sleeping.
func WithTimer(t backoff.Timer) EngineOption {
	return func(e *Engine) {
		e.timer = t
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithIDGenerator overrides the UUIDv7 request ID generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithSequencer overrides the logical clock stamping requests.
func WithSequencer(s Sequencer) EngineOption {
	return func(e *Engine) {
		e.seq = s
	}
}

// New creates an Engine applying requests to repo. The verse index is used
// to default and validate quran ranges.
func New(repo khatm.Repository, verses *verse.Index, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:        repo,
		verses:      verses,
		presets:     map[khatm.Type]khatm.Preset{},
		queue:       newRequestQueue(),
		seq:         NewClock(),
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		retryPolicy: DefaultRetryPolicy,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Enqueue stamps req with a fresh request ID and sequence number and queues
// it. It never blocks on storage. After Stop it returns khatm.ErrQueueClosed.
func (e *Engine) Enqueue(req mutation.Request) (*Ticket, error) {
	return e.EnqueueWithID(req, e.ids.Generate())
}

// EnqueueWithID queues req under a caller-chosen request ID. Producers that
// may resubmit the same contribution (for example after a crash) use a
// stable ID so the contribution is counted once.
func (e *Engine) EnqueueWithID(req mutation.Request, id string) (*Ticket, error) {
	env, ok := e.queue.Enqueue(envelope{req: req, id: id}, e.seq)
	if !ok {
		return nil, khatm.ErrQueueClosed
	}
	return env.ticket, nil
}

// Submit enqueues req and waits for its result.
func (e *Engine) Submit(ctx context.Context, req mutation.Request) (Result, error) {
	ticket, err := e.Enqueue(req)
	if err != nil {
		return Result{}, err
	}
	return ticket.Wait(ctx)
}

// Run is the processor loop. It blocks until ctx is cancelled (returning
// ctx.Err()) or Stop is called and the queue has drained (returning nil).
//
// Requests still queued when ctx is cancelled are resolved with
// khatm.ErrQueueClosed and never applied.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if ctx.Err() != nil {
			e.logger.Info("engine stopping: context cancelled")
			e.abandon()
			return ctx.Err()
		}

		env, ok := e.queue.TryDequeue()
		if ok {
			res := e.process(ctx, env)
			logResult(e.logger, res)
			env.ticket.resolve(res)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.abandon()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Close, so this fires
			// immediately once stopped.
			if e.queue.Drained() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run applies what is already queued, then returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of requests waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

func (e *Engine) abandon() {
	for _, env := range e.queue.Abandon() {
		env.ticket.resolve(Result{
			RequestID: env.id,
			Seq:       env.seq,
			Kind:      env.req.Kind(),
			Target:    env.req.Target(),
			Status:    StatusFailed,
			Err:       khatm.ErrQueueClosed,
		})
	}
}

// process applies one request with retries. Called only from Run.
func (e *Engine) process(ctx context.Context, env envelope) Result {
	res := Result{
		RequestID: env.id,
		Seq:       env.seq,
		Kind:      env.req.Kind(),
		Target:    env.req.Target(),
	}

	if u, ok := env.req.(mutation.Unknown); ok {
		res.Status = StatusDropped
		res.Err = khatm.UnknownMutation(u.Target(), u.Tag)
		return res
	}

	var out outcome
	attempts, err := e.retry(ctx, env, func() error {
		// Handlers re-read state on every attempt.
		out = outcome{}
		return e.repo.Update(ctx, func(tx khatm.Tx) error {
			var err error
			out, err = e.dispatch(ctx, tx, env)
			return err
		})
	})

	res.Attempts = attempts
	res.Err = err
	res.Status = statusOf(err)
	if err != nil {
		return res
	}
	if out.duplicate {
		res.Status = StatusDuplicate
	}
	res.Snapshot = out.snapshot
	res.Contribution = out.contribution
	res.Affected = out.affected
	return res
}
