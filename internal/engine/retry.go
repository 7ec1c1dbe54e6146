package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/khatm/internal/khatm"
)

// RetryPolicy bounds how often the processor re-attempts a request that
// failed on storage contention.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// InitialInterval is the wait after the first failure.
	InitialInterval time.Duration
	// Multiplier scales the wait after each further failure.
	Multiplier float64
}

// DefaultRetryPolicy tries three times, waiting 1s then 2s.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, InitialInterval: time.Second, Multiplier: 2}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// retry runs op until it succeeds, fails with a non-contention error, or the
// policy is exhausted. It returns the number of attempts made and op's last
// error; exhaustion is reported as khatm.ProcessingFailed.
func (e *Engine) retry(ctx context.Context, env envelope, op func() error) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := op()
		if err == nil || khatm.IsContention(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		e.logger.Warn("storage contention, retrying",
			slog.String("request_id", env.id),
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
	}

	b := e.retryPolicy.backOff(ctx)
	var err error
	if e.timer != nil {
		err = backoff.RetryNotifyWithTimer(operation, b, notify, e.timer)
	} else {
		err = backoff.RetryNotify(operation, b, notify)
	}

	if khatm.IsContention(err) {
		return attempts, khatm.ProcessingFailed(env.req.Target(), attempts, err)
	}
	return attempts, err
}
