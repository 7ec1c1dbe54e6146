// Package scheduler submits the time-driven resets.
//
// Each trigger is a cron schedule evaluated against a clockwork clock. When
// a trigger fires, the scheduler reads the store and enqueues mutation
// requests; it never writes to storage itself. The processor applies those
// requests in order with everything else, so a reset and a contribution to
// the same topic never interleave.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron"

	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
	"github.com/roach88/khatm/internal/store"
)

// Reader is the read path the scheduler needs. Implemented by *store.Store.
type Reader interface {
	DailyResetTargets(ctx context.Context) ([]store.DailyResetTarget, error)
	PeriodReached(ctx context.Context) ([]khatm.Topic, error)
	Groups(ctx context.Context) ([]khatm.Group, error)
}

// Enqueuer accepts mutation requests. Implemented by *engine.Engine.
type Enqueuer interface {
	Enqueue(req mutation.Request) (*engine.Ticket, error)
}

// Config selects when each trigger fires. Specs use six cron fields with a
// leading seconds field. An empty spec disables that trigger.
type Config struct {
	Location       *time.Location
	DailyResetSpec string
	SweepSpec      string
	WindowSpec     string
}

// Scheduler runs the reset triggers.
type Scheduler struct {
	reader Reader
	queue  Enqueuer
	clock  clockwork.Clock
	loc    *time.Location
	logger *slog.Logger
	jobs   []job
}

type job struct {
	name     string
	schedule cron.Schedule
	run      func(ctx context.Context) (int, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock. Tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New parses the trigger specs.
func New(r Reader, q Enqueuer, cfg Config, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		reader: r,
		queue:  q,
		clock:  clockwork.NewRealClock(),
		loc:    cfg.Location,
		logger: slog.Default(),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, j := range []struct {
		name string
		spec string
		run  func(ctx context.Context) (int, error)
	}{
		{"daily_reset", cfg.DailyResetSpec, s.DailyReset},
		{"period_sweep", cfg.SweepSpec, s.Sweep},
		{"activation_window", cfg.WindowSpec, s.Window},
	} {
		if j.spec == "" {
			continue
		}
		sched, err := cron.Parse(j.spec)
		if err != nil {
			return nil, fmt.Errorf("scheduler: %s spec %q: %w", j.name, j.spec, err)
		}
		s.jobs = append(s.jobs, job{name: j.name, schedule: sched, run: j.run})
	}
	return s, nil
}

// Run fires the triggers until ctx is cancelled. It always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "triggers", len(s.jobs), "location", s.loc.String())

	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	for {
		now := s.clock.Now().In(s.loc)
		next := j.schedule.Next(now)
		timer := s.clock.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		n, err := j.run(ctx)
		if err != nil {
			s.logger.Error("trigger failed", "trigger", j.name, "error", err)
			continue
		}
		s.logger.Debug("trigger fired", "trigger", j.name, "enqueued", n)
	}
}

// DailyReset enqueues one reset_daily_group per (group, khatm type) owning
// daily-reset topics. It returns the number of requests enqueued.
func (s *Scheduler) DailyReset(ctx context.Context) (int, error) {
	targets, err := s.reader.DailyResetTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("daily reset: %w", err)
	}

	reqs := make([]mutation.Request, 0, len(targets))
	for _, t := range targets {
		reqs = append(reqs, mutation.ResetDailyGroup{Base: mutation.At(t.GroupID, 0), Type: t.Type})
	}
	return s.enqueue(reqs)
}

// Sweep enqueues reset_periodic_topic for wraparound topics sitting at or
// above their period. Contributions wrap their own totals, so this only
// catches topics whose period was lowered below the running total.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	topics, err := s.reader.PeriodReached(ctx)
	if err != nil {
		return 0, fmt.Errorf("period sweep: %w", err)
	}

	reqs := make([]mutation.Request, 0, len(topics))
	for _, t := range topics {
		reqs = append(reqs, mutation.ResetPeriodicTopic{Base: mutation.At(t.GroupID, t.TopicID), Type: t.Type})
	}
	return s.enqueue(reqs)
}

// Window flips groups whose stored activation disagrees with their
// off-hours window. Groups without a window are left alone.
func (s *Scheduler) Window(ctx context.Context) (int, error) {
	groups, err := s.reader.Groups(ctx)
	if err != nil {
		return 0, fmt.Errorf("activation window: %w", err)
	}

	now := s.clock.Now().In(s.loc)
	var reqs []mutation.Request
	for _, g := range groups {
		off, ok := InOffHours(g.OffHoursStart, g.OffHoursEnd, now)
		if !ok || g.IsActive == !off {
			continue
		}
		reqs = append(reqs, mutation.SetGroupActive{Base: mutation.At(g.GroupID, 0), IsActive: !off})
	}
	return s.enqueue(reqs)
}

func (s *Scheduler) enqueue(reqs []mutation.Request) (int, error) {
	for i, r := range reqs {
		if _, err := s.queue.Enqueue(r); err != nil {
			return i, fmt.Errorf("enqueue %s: %w", r.Kind(), err)
		}
	}
	return len(reqs), nil
}

// InOffHours reports whether now's wall-clock time lies in [start, end).
// A window with start after end wraps past midnight. ok is false when the
// window is unset, malformed or empty.
func InOffHours(start, end string, now time.Time) (off, ok bool) {
	if start == "" || end == "" {
		return false, false
	}
	from, err := minuteOfDay(start)
	if err != nil {
		return false, false
	}
	to, err := minuteOfDay(end)
	if err != nil || from == to {
		return false, false
	}

	m := now.Hour()*60 + now.Minute()
	if from < to {
		return m >= from && m < to, true
	}
	return m >= from || m < to, true
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
