package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/khatm/internal/khatm"
)

// TopicOptions addresses one topic.
type TopicOptions struct {
	*RootOptions
	GroupID int64
	TopicID int64
	Limit   int
}

func (o *TopicOptions) key() khatm.Key {
	return khatm.Key{GroupID: o.GroupID, TopicID: o.TopicID}
}

func addTopicFlags(cmd *cobra.Command, opts *TopicOptions) {
	cmd.Flags().Int64VarP(&opts.GroupID, "group", "g", 0, "chat group ID (required)")
	cmd.Flags().Int64VarP(&opts.TopicID, "topic", "t", 0, "topic ID within the group")
	_ = cmd.MarkFlagRequired("group")
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TopicOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the progress of a topic",
		Example: `  khatm status --group -100123 --topic 7
  khatm status -g -100123 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
				snap, err := a.store.Snapshot(ctx, opts.key())
				if err != nil {
					return nil, err
				}
				return snapshotView{snap}, nil
			})
		},
	}
	addTopicFlags(cmd, opts)

	return cmd
}

// NewRankCommand creates the rank command.
func NewRankCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TopicOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Show the top contributors of a topic",
		Long: `Show the top contributors of a topic.

Totals are kept per khatm type, so after a topic switches type the ranking
only counts contributions made under its current type.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) (any, error) {
				entries, err := a.store.Ranking(ctx, opts.key(), opts.Limit)
				if err != nil {
					return nil, err
				}
				return rankingView{Key: opts.key(), Entries: entries}, nil
			})
		},
	}
	addTopicFlags(cmd, opts)
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of contributors to show (0 for all)")

	return cmd
}

// withApp opens the store, runs query and prints its result. A missing
// topic is reported as TOPIC_NOT_FOUND.
func withApp(opts *RootOptions, cmd *cobra.Command, query func(ctx context.Context, a *app) (any, error)) error {
	a, err := openApp(opts, cmd.ErrOrStderr())
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

	f := opts.formatter(cmd.OutOrStdout())
	data, err := query(ctx, a)
	if errors.Is(err, khatm.ErrNotFound) {
		_ = f.Error(string(khatm.ErrCodeTopicNotFound), err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}
	return f.Success(data)
}
