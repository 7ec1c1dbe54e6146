package khatm

import "context"

// Tx is the view of the Counter Store available to one atomic apply.
// Implementations must make every write visible only after the enclosing
// Update returns nil.
type Tx interface {
	// Topic returns the topic row or an error wrapping ErrNotFound.
	Topic(ctx context.Context, key Key) (Topic, error)
	PutTopic(ctx context.Context, t Topic) error
	DeleteTopic(ctx context.Context, key Key) error
	TopicsInGroup(ctx context.Context, groupID int64) ([]Topic, error)

	// Range returns the topic's verse range; ok is false when none is set.
	Range(ctx context.Context, key Key) (rng VerseRange, ok bool, err error)
	PutRange(ctx context.Context, r VerseRange) error
	DeleteRange(ctx context.Context, key Key) error

	// Group returns the group row; a missing group yields an active default.
	Group(ctx context.Context, groupID int64) (Group, error)
	PutGroup(ctx context.Context, g Group) error

	AppendLog(ctx context.Context, e LogEntry) error
	PurgeLog(ctx context.Context, key Key) error

	// Processed reports whether requestID was recorded by MarkProcessed.
	// The record outlives PurgeLog and DeleteTopic.
	Processed(ctx context.Context, requestID string) (bool, error)
	MarkProcessed(ctx context.Context, requestID string, seq int64) error

	Credit(ctx context.Context, c Credit) error
	PurgeContributions(ctx context.Context, key Key) error
}

// Repository runs fn inside one storage transaction. A nil return commits;
// any error rolls back. Lock contention surfaces as ErrContention.
type Repository interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
}
