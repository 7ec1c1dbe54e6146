package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/scheduler"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ExitOnEOF bool
	// NoScheduler disables the reset triggers even when configured.
	NoScheduler bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve mutation requests from stdin",
		Long: `Start the processor and the reset scheduler.

Mutation requests are read from stdin, one JSON object per line, and applied
in arrival order. A line may carry a "request_id"; a contribution resent
under the same ID is counted once. One result is printed per request, in
order. Blank lines and lines starting with # are skipped.

The command runs until interrupted. Requests already queued when the signal
arrives are applied before exit.

Example:
  echo '{"type":"contribution","group_id":1,"topic_id":2,"user_id":7,"amount":100,"khatm_type":"salavat"}' | khatm run --exit-on-eof
  khatm run --db ./khatm.db --format json < requests.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ExitOnEOF, "exit-on-eof", false, "shut down once stdin is exhausted")
	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "do not run the reset triggers")

	return cmd
}

// pendingLine is a line waiting to be printed: a ticket, or the error that
// kept the line from being queued.
type pendingLine struct {
	ticket *engine.Ticket
	err    error
}

func runServe(opts *RunOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger := a.logger

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	eng, err := a.newEngine(parentCtx)
	if err != nil {
		return err
	}

	// Signals and EOF end intake. The engine itself only sees parentCtx so
	// queued requests still drain on shutdown.
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(parentCtx)
	}()

	var schedWG sync.WaitGroup
	if !a.cfg.Scheduler.Disabled && !opts.NoScheduler {
		sched, err := scheduler.New(a.store, eng, scheduler.Config{
			Location:       a.cfg.Scheduler.Location,
			DailyResetSpec: a.cfg.Scheduler.DailyResetSpec,
			SweepSpec:      a.cfg.Scheduler.SweepSpec,
			WindowSpec:     a.cfg.Scheduler.WindowSpec,
		}, scheduler.WithLogger(logger))
		if err != nil {
			eng.Stop()
			<-engineDone
			return WrapExitError(ExitCommandError, "invalid scheduler config", err)
		}
		schedWG.Add(1)
		go func() {
			defer schedWG.Done()
			_ = sched.Run(ctx)
		}()
	}

	// mu orders intake against Stop: once Stop returns, every ticket that
	// was issued is already in pending.
	var (
		mu      sync.Mutex
		stopped bool
	)
	pending := make(chan pendingLine, 256)

	go func() {
		err := scanRequests(cmd.InOrStdin(), func(w wireRequest, err error) error {
			mu.Lock()
			defer mu.Unlock()
			if stopped {
				return khatm.ErrQueueClosed
			}
			if err != nil {
				pending <- pendingLine{err: err}
				return nil
			}
			ticket, err := enqueue(eng, w)
			if err != nil {
				return err
			}
			pending <- pendingLine{ticket: ticket}
			return nil
		})
		if err != nil && !errors.Is(err, khatm.ErrQueueClosed) {
			logger.Error("reading requests", "error", err)
		}
		logger.Debug("request intake finished")
		if opts.ExitOnEOF {
			cancel()
		}
	}()

	printed := make(chan struct{})
	f := opts.formatter(cmd.OutOrStdout())
	go func() {
		defer close(printed)
		for {
			select {
			case p := <-pending:
				printPending(parentCtx, f, p)
			case <-engineDone:
				for {
					select {
					case p := <-pending:
						printPending(parentCtx, f, p)
					default:
						return
					}
				}
			}
		}
	}()

	logger.Info("khatm serving", "db", a.cfg.Database.Path)
	<-ctx.Done()
	logger.Info("shutting down")

	schedWG.Wait()
	mu.Lock()
	stopped = true
	eng.Stop()
	mu.Unlock()
	<-printed

	if err := parentCtx.Err(); err != nil {
		return WrapExitError(ExitFailure, "processor interrupted", err)
	}
	logger.Info("khatm stopped gracefully")
	return nil
}

func printPending(ctx context.Context, f *OutputFormatter, p pendingLine) {
	if p.err != nil {
		_ = f.Error("E_INVALID_REQUEST", p.err.Error(), nil)
		return
	}
	res, err := p.ticket.Wait(ctx)
	if err != nil {
		_ = f.Error("E_INTERNAL", fmt.Sprintf("request %s: %v", p.ticket.ID, err), nil)
		return
	}
	_ = f.Success(newResultView(res))
}
