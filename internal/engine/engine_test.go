package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
	"github.com/roach88/khatm/internal/store"
	"github.com/roach88/khatm/internal/testutil"
	"github.com/roach88/khatm/internal/verse"
)

var (
	topicKey = khatm.Key{GroupID: 1, TopicID: 1}
	at       = mutation.At(1, 1)
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(repo khatm.Repository, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(NewSequentialGenerator("")),
		WithSequencer(testutil.NewDeterministicClock()),
		WithTimer(testutil.NewFakeTimer()),
	}
	return New(repo, verse.MustLoad(), append(base, opts...)...)
}

// runEngine starts Run and stops it when the test ends.
func runEngine(t *testing.T, e *Engine) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()
	t.Cleanup(func() {
		e.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
	})
}

func submit(t *testing.T, e *Engine, req mutation.Request) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := e.Submit(ctx, req)
	require.NoError(t, err)
	return res
}

func mustApply(t *testing.T, e *Engine, req mutation.Request) Result {
	t.Helper()
	res := submit(t, e, req)
	require.Equal(t, StatusApplied, res.Status, "request %s: %v", req.Kind(), res.Err)
	return res
}

func TestEngine_ConcurrentContributionsSum(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(s, WithIDGenerator(UUIDv7Generator{}), WithSequencer(NewClock()))
	runEngine(t, e)

	mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "salavat"})

	const producers = 10
	const perProducer = 20

	var wg sync.WaitGroup
	tickets := make(chan *Ticket, producers*perProducer)
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ticket, err := e.Enqueue(mutation.Contribution{Base: at, UserID: user, Amount: 1})
				if assert.NoError(t, err) {
					tickets <- ticket
				}
			}
		}(int64(p + 1))
	}
	wg.Wait()
	close(tickets)

	ctx := context.Background()
	for ticket := range tickets {
		res, err := ticket.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusApplied, res.Status)
	}

	snap, err := s.Snapshot(ctx, topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(producers*perProducer), snap.CurrentTotal)

	log, err := s.RecentLog(ctx, topicKey, 0)
	require.NoError(t, err)
	require.Len(t, log, producers*perProducer)
	for i := 1; i < len(log); i++ {
		assert.Less(t, log[i].Seq, log[i-1].Seq, "log must be in processing order")
	}

	ranking, err := s.Ranking(ctx, topicKey, 0)
	require.NoError(t, err)
	require.Len(t, ranking, producers)
	for _, r := range ranking {
		assert.Equal(t, int64(perProducer), r.Total)
	}
}

func TestEngine_RetryExhaustion(t *testing.T) {
	repo := &testutil.ContendedRepo{}
	timer := testutil.NewFakeTimer()
	e := newTestEngine(repo, WithTimer(timer))
	runEngine(t, e)

	res := submit(t, e, mutation.Contribution{Base: at, UserID: 7, Amount: 1})

	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, khatm.ErrCodeProcessingFailed, khatm.CodeOf(res.Err))
	assert.True(t, errors.Is(res.Err, khatm.ErrProcessingFailed))
	assert.True(t, errors.Is(res.Err, khatm.ErrContention))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Waits())
	assert.Equal(t, 3, repo.Calls())
}

func TestEngine_RetryRecoversAndNextRequestProceeds(t *testing.T) {
	s := setupTestStore(t)
	repo := &testutil.ContendedRepo{Next: s, Failures: 2}
	timer := testutil.NewFakeTimer()
	e := newTestEngine(repo, WithTimer(timer))
	runEngine(t, e)

	res := mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "salavat"})
	assert.Equal(t, 3, res.Attempts)

	res = mustApply(t, e, mutation.Contribution{Base: at, UserID: 7, Amount: 5})
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int64(5), res.Snapshot.CurrentTotal)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timer.Waits())
}

func TestEngine_FailedRequestDoesNotStopLoop(t *testing.T) {
	s := setupTestStore(t)
	repo := &testutil.ContendedRepo{Next: s, Failures: 3}
	e := newTestEngine(repo)
	runEngine(t, e)

	res := submit(t, e, mutation.StartSalavat{Base: at, TopicName: "lost"})
	assert.Equal(t, StatusFailed, res.Status)

	mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "kept"})
	topic, err := s.Topic(context.Background(), topicKey)
	require.NoError(t, err)
	assert.Equal(t, "kept", topic.Name)
}

func TestEngine_UnknownTypeDropped(t *testing.T) {
	repo := &testutil.ContendedRepo{}
	e := newTestEngine(repo)
	runEngine(t, e)

	res := submit(t, e, mutation.Unknown{Base: at, Tag: "frobnicate"})

	assert.Equal(t, StatusDropped, res.Status)
	assert.Equal(t, mutation.Kind("frobnicate"), res.Kind)
	assert.Equal(t, khatm.ErrCodeUnknownMutation, khatm.CodeOf(res.Err))
	assert.Equal(t, 0, repo.Calls(), "unknown requests never reach storage")
}

func TestEngine_RejectionWritesNothing(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(s)
	runEngine(t, e)

	mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "salavat"})
	hi := int64(10)
	mustApply(t, e, mutation.SetBounds{Base: at, Max: &hi})

	res := submit(t, e, mutation.Contribution{Base: at, UserID: 7, Amount: 11})
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, khatm.ErrCodeOutOfBounds, khatm.CodeOf(res.Err))
	assert.Equal(t, 1, res.Attempts, "validation failures are not retried")

	ctx := context.Background()
	snap, err := s.Snapshot(ctx, topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.CurrentTotal)

	log, err := s.RecentLog(ctx, topicKey, 0)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestEngine_DuplicateRequestID(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(s)
	runEngine(t, e)

	mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "salavat"})

	ctx := context.Background()
	req := mutation.Contribution{Base: at, UserID: 7, Amount: 3}
	first, err := e.EnqueueWithID(req, "msg-42")
	require.NoError(t, err)
	second, err := e.EnqueueWithID(req, "msg-42")
	require.NoError(t, err)

	res, err := first.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)
	assert.Equal(t, "msg-42", res.RequestID)

	res, err = second.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.NoError(t, res.Err)

	snap, err := s.Snapshot(ctx, topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.CurrentTotal)
}

func TestEngine_DuplicateAfterLogPurge(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(s)
	runEngine(t, e)

	mustApply(t, e, mutation.StartSalavat{Base: at, TopicName: "salavat"})

	ctx := context.Background()
	send := func(req mutation.Request, id string) Result {
		t.Helper()
		ticket, err := e.EnqueueWithID(req, id)
		require.NoError(t, err)
		res, err := ticket.Wait(ctx)
		require.NoError(t, err)
		return res
	}

	req := mutation.Contribution{Base: at, UserID: 7, Amount: 5}
	assert.Equal(t, StatusApplied, send(req, "msg-1").Status)
	assert.Equal(t, StatusDuplicate, send(req, "msg-1").Status)

	mustApply(t, e, mutation.ResetStats{Base: at})
	log, err := s.RecentLog(ctx, topicKey, 0)
	require.NoError(t, err)
	require.Empty(t, log)

	assert.Equal(t, StatusDuplicate, send(req, "msg-1").Status)
	snap, err := s.Snapshot(ctx, topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.CurrentTotal)

	mustApply(t, e, mutation.ResetAll{Base: at})
	assert.Equal(t, StatusDuplicate, send(req, "msg-1").Status)
	snap, err = s.Snapshot(ctx, topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.CurrentTotal)
}

func TestEngine_StopDrainsQueue(t *testing.T) {
	s := setupTestStore(t)
	e := newTestEngine(s)

	var tickets []*Ticket
	start, err := e.Enqueue(mutation.StartSalavat{Base: at, TopicName: "salavat"})
	require.NoError(t, err)
	tickets = append(tickets, start)
	for i := 0; i < 5; i++ {
		ticket, err := e.Enqueue(mutation.Contribution{Base: at, UserID: 7, Amount: 1})
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}
	assert.Equal(t, 6, e.QueueLen())

	e.Stop()
	_, err = e.Enqueue(mutation.Contribution{Base: at, UserID: 7, Amount: 1})
	assert.ErrorIs(t, err, khatm.ErrQueueClosed)

	require.NoError(t, e.Run(context.Background()))

	for i, ticket := range tickets {
		res, err := ticket.Wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusApplied, res.Status)
		assert.Equal(t, int64(i+1), res.Seq)
	}

	snap, err := s.Snapshot(context.Background(), topicKey)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.CurrentTotal)
}

// blockingRepo holds the first Update until released.
type blockingRepo struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRepo) Update(context.Context, func(khatm.Tx) error) error {
	close(r.started)
	<-r.release
	return nil
}

func TestEngine_CancelAbandonsQueue(t *testing.T) {
	repo := &blockingRepo{started: make(chan struct{}), release: make(chan struct{})}
	e := newTestEngine(repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	first, err := e.Enqueue(mutation.Deactivate{Base: at})
	require.NoError(t, err)
	<-repo.started

	second, err := e.Enqueue(mutation.Deactivate{Base: at})
	require.NoError(t, err)

	cancel()
	close(repo.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	res, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, res.Status)

	res, err = second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, khatm.ErrQueueClosed)

	_, err = e.Enqueue(mutation.Deactivate{Base: at})
	assert.ErrorIs(t, err, khatm.ErrQueueClosed)
}

func TestTicket_WaitHonoursContext(t *testing.T) {
	ticket := newTicket("req-1", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ticket.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusApplied},
		{"validation", khatm.OutOfBounds(topicKey, 5, 1, 2), StatusRejected},
		{"not found", khatm.TopicNotFound(topicKey), StatusRejected},
		{"unknown", khatm.UnknownMutation(topicKey, "x"), StatusDropped},
		{"exhausted", khatm.ProcessingFailed(topicKey, 3, khatm.ErrContention), StatusFailed},
		{"other", errors.New("disk on fire"), StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
