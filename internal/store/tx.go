package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/khatm/internal/khatm"
)

const (
	tableGroups        = "chat_groups"
	tableTopics        = "topics"
	tableRanges        = "verse_ranges"
	tableContributions = "user_contributions"
	tableLog           = "contribution_log"
	tableProcessed     = "processed_requests"
)

var topicColumns = []string{
	"group_id", "topic_id", "topic_name", "khatm_type",
	"current_total", "current_verse_ordinal",
	"min_bound", "max_bound", "stop_number", "period_number",
	"reset_on_period", "daily_reset", "is_active", "completion_count",
	"zekr_text", "completion_message",
}

var groupColumns = []string{"group_id", "is_active", "off_hours_start", "off_hours_end", "last_tag_at"}

var logColumns = []string{"request_id", "seq", "group_id", "topic_id", "user_id", "amount", "verse_ordinal"}

// tx implements khatm.Tx on one SQL transaction.
type tx struct {
	q querier
}

var _ khatm.Tx = (*tx)(nil)

func keyEq(key khatm.Key) sq.Eq {
	return sq.Eq{"group_id": key.GroupID, "topic_id": key.TopicID}
}

// upsertSuffix renders ON CONFLICT ... DO UPDATE for every non-key column.
func upsertSuffix(conflict []string, columns []string) string {
	keys := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		keys[c] = true
	}
	var sets []string
	for _, c := range columns {
		if !keys[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(sets, ", "))
}

func (t *tx) Topic(ctx context.Context, key khatm.Key) (khatm.Topic, error) {
	return getTopic(ctx, t.q, key)
}

func (t *tx) PutTopic(ctx context.Context, topic khatm.Topic) error {
	b := sq.Insert(tableTopics).
		Columns(topicColumns...).
		Values(
			topic.GroupID, topic.TopicID, topic.Name, string(topic.Type),
			topic.CurrentTotal, topic.CurrentVerse,
			topic.MinBound, topic.MaxBound, topic.StopNumber, topic.PeriodNumber,
			topic.ResetOnPeriod, topic.DailyReset, topic.IsActive, topic.CompletionCount,
			topic.ZekrText, topic.CompletionMessage,
		).
		Suffix(upsertSuffix([]string{"group_id", "topic_id"}, topicColumns))
	return exec(ctx, t.q, "put topic", b)
}

func (t *tx) DeleteTopic(ctx context.Context, key khatm.Key) error {
	return exec(ctx, t.q, "delete topic", sq.Delete(tableTopics).Where(keyEq(key)))
}

func (t *tx) TopicsInGroup(ctx context.Context, groupID int64) ([]khatm.Topic, error) {
	return listTopics(ctx, t.q, TopicFilter{GroupID: &groupID})
}

func (t *tx) Range(ctx context.Context, key khatm.Key) (khatm.VerseRange, bool, error) {
	return getRange(ctx, t.q, key)
}

func (t *tx) PutRange(ctx context.Context, r khatm.VerseRange) error {
	cols := []string{"group_id", "topic_id", "start_verse_ordinal", "end_verse_ordinal"}
	b := sq.Insert(tableRanges).
		Columns(cols...).
		Values(r.GroupID, r.TopicID, r.Start, r.End).
		Suffix(upsertSuffix([]string{"group_id", "topic_id"}, cols))
	return exec(ctx, t.q, "put verse range", b)
}

func (t *tx) DeleteRange(ctx context.Context, key khatm.Key) error {
	return exec(ctx, t.q, "delete verse range", sq.Delete(tableRanges).Where(keyEq(key)))
}

func (t *tx) Group(ctx context.Context, groupID int64) (khatm.Group, error) {
	return getGroup(ctx, t.q, groupID)
}

func (t *tx) PutGroup(ctx context.Context, g khatm.Group) error {
	b := sq.Insert(tableGroups).
		Columns(groupColumns...).
		Values(g.GroupID, g.IsActive, g.OffHoursStart, g.OffHoursEnd, g.LastTagAt).
		Suffix(upsertSuffix([]string{"group_id"}, groupColumns))
	return exec(ctx, t.q, "put group", b)
}

func (t *tx) AppendLog(ctx context.Context, e khatm.LogEntry) error {
	b := sq.Insert(tableLog).
		Columns(logColumns...).
		Values(e.RequestID, e.Seq, e.GroupID, e.TopicID, e.UserID, e.Amount, e.Verse)
	return exec(ctx, t.q, "append log", b)
}

func (t *tx) PurgeLog(ctx context.Context, key khatm.Key) error {
	return exec(ctx, t.q, "purge log", sq.Delete(tableLog).Where(keyEq(key)))
}

func (t *tx) Processed(ctx context.Context, requestID string) (bool, error) {
	query, args, err := sq.Select("1").From(tableProcessed).Where(sq.Eq{"request_id": requestID}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("processed: build query: %w", err)
	}
	var one int
	err = t.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("processed", err)
	}
	return true, nil
}

func (t *tx) MarkProcessed(ctx context.Context, requestID string, seq int64) error {
	b := sq.Insert(tableProcessed).
		Columns("request_id", "seq").
		Values(requestID, seq)
	return exec(ctx, t.q, "mark processed", b)
}

// Credit upserts the user's total for c.Category. Totals are floored at zero
// so a correction never leaves a negative personal total.
func (t *tx) Credit(ctx context.Context, c khatm.Credit) error {
	col, err := categoryColumn(c.Category)
	if err != nil {
		return err
	}
	b := sq.Insert(tableContributions).
		Columns("group_id", "topic_id", "user_id", col).
		Values(c.GroupID, c.TopicID, c.UserID, sq.Expr("MAX(0, ?)", c.Amount)).
		Suffix(fmt.Sprintf(
			"ON CONFLICT (group_id, topic_id, user_id) DO UPDATE SET %[1]s = MAX(0, %[1]s + ?)", col,
		), c.Amount)
	return exec(ctx, t.q, "credit contribution", b)
}

func (t *tx) PurgeContributions(ctx context.Context, key khatm.Key) error {
	return exec(ctx, t.q, "purge contributions", sq.Delete(tableContributions).Where(keyEq(key)))
}

func categoryColumn(c khatm.Category) (string, error) {
	switch c {
	case khatm.CategorySalavat, khatm.CategoryZekr, khatm.CategoryAyat:
		return string(c), nil
	default:
		return "", fmt.Errorf("unknown contribution category %q", c)
	}
}
