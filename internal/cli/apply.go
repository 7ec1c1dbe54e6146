package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/khatm/internal/engine"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply [requests.jsonl]",
		Short: "Apply a batch of mutation requests",
		Long: `Apply mutation requests from a file (or stdin when omitted or "-").

Each line is applied and its result printed before the next line is read.
The scheduler does not run. Exits non-zero if any request was rejected,
dropped or failed.

Example:
  khatm apply requests.jsonl
  khatm apply --format json - < requests.jsonl`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open requests", err)
				}
				defer f.Close()
				in = f
			}
			return runApply(opts, cmd, in)
		},
	}

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command, in io.Reader) error {
	a, err := openApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	f := opts.formatter(cmd.OutOrStdout())
	var applied, failed int
	scanErr := scanRequests(in, func(w wireRequest, err error) error {
		if err != nil {
			failed++
			return f.Error("E_INVALID_REQUEST", err.Error(), nil)
		}
		ticket, err := enqueue(eng, w)
		if err != nil {
			return err
		}
		res, err := ticket.Wait(ctx)
		if err != nil {
			return err
		}
		switch res.Status {
		case engine.StatusApplied, engine.StatusDuplicate:
			applied++
		default:
			failed++
		}
		return f.Success(newResultView(res))
	})

	eng.Stop()
	runErr := <-engineDone

	if scanErr != nil {
		return WrapExitError(ExitFailure, "apply interrupted", scanErr)
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "processor interrupted", runErr)
	}
	a.logger.Info("batch applied", "applied", applied, "failed", failed)
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d requests not applied", failed, applied+failed))
	}
	return nil
}
