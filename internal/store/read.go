package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/khatm/internal/khatm"
)

// TopicFilter narrows ListTopics. Nil and zero fields do not filter.
type TopicFilter struct {
	GroupID    *int64
	Type       khatm.Type
	DailyReset *bool
	ActiveOnly bool
}

// RankEntry is one row of a topic's contributor ranking.
type RankEntry struct {
	UserID int64 `json:"user_id"`
	Total  int64 `json:"total"`
}

// DailyResetTarget is a (group, khatm type) pair with daily-reset topics.
type DailyResetTarget struct {
	GroupID int64
	Type    khatm.Type
}

// The methods below read through the pooled query-only handle. They are not
// serialized with the processor, so a result may trail requests that are
// still queued.

// Topic returns the topic row or an error wrapping khatm.ErrNotFound.
func (s *Store) Topic(ctx context.Context, key khatm.Key) (khatm.Topic, error) {
	return getTopic(ctx, s.ro, key)
}

// Snapshot returns the progress snapshot of a topic.
func (s *Store) Snapshot(ctx context.Context, key khatm.Key) (khatm.Snapshot, error) {
	t, err := getTopic(ctx, s.ro, key)
	if err != nil {
		return khatm.Snapshot{}, err
	}
	rng, ok, err := getRange(ctx, s.ro, key)
	if err != nil {
		return khatm.Snapshot{}, err
	}
	if !ok {
		return khatm.SnapshotOf(t, nil), nil
	}
	return khatm.SnapshotOf(t, &rng), nil
}

// Range returns the verse range of a quran topic.
func (s *Store) Range(ctx context.Context, key khatm.Key) (khatm.VerseRange, bool, error) {
	return getRange(ctx, s.ro, key)
}

// ListTopics returns topics matching f ordered by (group_id, topic_id).
func (s *Store) ListTopics(ctx context.Context, f TopicFilter) ([]khatm.Topic, error) {
	return listTopics(ctx, s.ro, f)
}

// Group returns the group row; a group without a row is active.
func (s *Store) Group(ctx context.Context, groupID int64) (khatm.Group, error) {
	return getGroup(ctx, s.ro, groupID)
}

// Groups returns every stored group row ordered by group_id.
func (s *Store) Groups(ctx context.Context) ([]khatm.Group, error) {
	query, args, err := sq.Select(groupColumns...).From(tableGroups).OrderBy("group_id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("groups: build query: %w", err)
	}
	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []khatm.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// DailyResetTargets lists the (group, type) pairs that own at least one
// topic flagged for daily reset.
func (s *Store) DailyResetTargets(ctx context.Context) ([]DailyResetTarget, error) {
	query, args, err := sq.Select("group_id", "khatm_type").
		Distinct().
		From(tableTopics).
		Where(sq.Eq{"daily_reset": true}).
		OrderBy("group_id ASC", "khatm_type ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("daily reset targets: build query: %w", err)
	}
	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily reset targets: %w", err)
	}
	defer rows.Close()

	targets := []DailyResetTarget{}
	for rows.Next() {
		var d DailyResetTarget
		var kind string
		if err := rows.Scan(&d.GroupID, &kind); err != nil {
			return nil, fmt.Errorf("scan daily reset target: %w", err)
		}
		d.Type = khatm.Type(kind)
		targets = append(targets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily reset targets: %w", err)
	}
	return targets, nil
}

// PeriodReached lists non-quran wraparound topics whose total has reached
// their period number without being wrapped.
func (s *Store) PeriodReached(ctx context.Context) ([]khatm.Topic, error) {
	b := sq.Select(topicColumns...).
		From(tableTopics).
		Where(sq.Eq{"reset_on_period": true}).
		Where(sq.NotEq{"khatm_type": string(khatm.TypeQuran)}).
		Where(sq.Gt{"period_number": 0}).
		Where("current_total >= period_number").
		OrderBy("group_id ASC", "topic_id ASC")
	return queryTopics(ctx, s.ro, b)
}

// Ranking returns the top contributors of a topic in the category of its
// khatm type, highest total first. limit <= 0 returns everyone.
func (s *Store) Ranking(ctx context.Context, key khatm.Key, limit int) ([]RankEntry, error) {
	t, err := getTopic(ctx, s.ro, key)
	if err != nil {
		return nil, err
	}
	col, err := categoryColumn(khatm.CategoryFor(t.Type))
	if err != nil {
		return nil, err
	}

	b := sq.Select("user_id", col).
		From(tableContributions).
		Where(keyEq(key)).
		Where(sq.Gt{col: 0}).
		OrderBy(col+" DESC", "user_id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("ranking: build query: %w", err)
	}
	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ranking: %w", err)
	}
	defer rows.Close()

	ranking := []RankEntry{}
	for rows.Next() {
		var r RankEntry
		if err := rows.Scan(&r.UserID, &r.Total); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		ranking = append(ranking, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ranking: %w", err)
	}
	return ranking, nil
}

// UserContribution returns one user's totals in a topic. A user with no row
// gets zero totals.
func (s *Store) UserContribution(ctx context.Context, key khatm.Key, userID int64) (khatm.UserContribution, error) {
	uc := khatm.UserContribution{Key: key, UserID: userID}
	query, args, err := sq.Select("total_salavat", "total_zekr", "total_ayat").
		From(tableContributions).
		Where(keyEq(key)).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return uc, fmt.Errorf("user contribution: build query: %w", err)
	}
	err = s.ro.QueryRowContext(ctx, query, args...).Scan(&uc.TotalSalavat, &uc.TotalZekr, &uc.TotalAyat)
	if errors.Is(err, sql.ErrNoRows) {
		return uc, nil
	}
	if err != nil {
		return uc, fmt.Errorf("query user contribution: %w", err)
	}
	return uc, nil
}

// RecentLog returns the newest contribution log rows of a topic, newest
// first. limit <= 0 returns the whole log.
func (s *Store) RecentLog(ctx context.Context, key khatm.Key, limit int) ([]khatm.LogEntry, error) {
	b := sq.Select(logColumns...).
		From(tableLog).
		Where(keyEq(key)).
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("recent log: build query: %w", err)
	}
	rows, err := s.ro.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent log: %w", err)
	}
	defer rows.Close()

	entries := []khatm.LogEntry{}
	for rows.Next() {
		var e khatm.LogEntry
		if err := rows.Scan(&e.RequestID, &e.Seq, &e.GroupID, &e.TopicID, &e.UserID, &e.Amount, &e.Verse); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest seq recorded in the contribution log or the
// processed request set, or 0 when both are empty. The processor's clock
// resumes after it.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	seqs := sq.Select("seq").From(tableLog).
		Suffix("UNION ALL SELECT seq FROM " + tableProcessed)
	query, args, err := sq.Select("COALESCE(MAX(seq), 0)").FromSelect(seqs, "s").ToSql()
	if err != nil {
		return 0, fmt.Errorf("last seq: build query: %w", err)
	}
	var seq int64
	if err := s.ro.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

// Query runs a raw query on the read handle. Callers close the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.ro.QueryContext(ctx, query, args...)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTopic(r rowScanner) (khatm.Topic, error) {
	var t khatm.Topic
	var kind string
	err := r.Scan(
		&t.GroupID, &t.TopicID, &t.Name, &kind,
		&t.CurrentTotal, &t.CurrentVerse,
		&t.MinBound, &t.MaxBound, &t.StopNumber, &t.PeriodNumber,
		&t.ResetOnPeriod, &t.DailyReset, &t.IsActive, &t.CompletionCount,
		&t.ZekrText, &t.CompletionMessage,
	)
	t.Type = khatm.Type(kind)
	return t, err
}

func scanGroup(r rowScanner) (khatm.Group, error) {
	var g khatm.Group
	if err := r.Scan(&g.GroupID, &g.IsActive, &g.OffHoursStart, &g.OffHoursEnd, &g.LastTagAt); err != nil {
		return g, fmt.Errorf("scan group: %w", err)
	}
	return g, nil
}

func getTopic(ctx context.Context, q querier, key khatm.Key) (khatm.Topic, error) {
	query, args, err := sq.Select(topicColumns...).From(tableTopics).Where(keyEq(key)).ToSql()
	if err != nil {
		return khatm.Topic{}, fmt.Errorf("topic: build query: %w", err)
	}
	t, err := scanTopic(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return khatm.Topic{}, fmt.Errorf("topic %s: %w", key, khatm.ErrNotFound)
	}
	if err != nil {
		return khatm.Topic{}, classify("query topic", err)
	}
	return t, nil
}

func listTopics(ctx context.Context, q querier, f TopicFilter) ([]khatm.Topic, error) {
	b := sq.Select(topicColumns...).From(tableTopics).OrderBy("group_id ASC", "topic_id ASC")
	if f.GroupID != nil {
		b = b.Where(sq.Eq{"group_id": *f.GroupID})
	}
	if f.Type != "" {
		b = b.Where(sq.Eq{"khatm_type": string(f.Type)})
	}
	if f.DailyReset != nil {
		b = b.Where(sq.Eq{"daily_reset": *f.DailyReset})
	}
	if f.ActiveOnly {
		b = b.Where(sq.Eq{"is_active": true})
	}
	return queryTopics(ctx, q, b)
}

func queryTopics(ctx context.Context, q querier, b sq.SelectBuilder) ([]khatm.Topic, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("topics: build query: %w", err)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query topics", err)
	}
	defer rows.Close()

	topics := []khatm.Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate topics", err)
	}
	return topics, nil
}

func getRange(ctx context.Context, q querier, key khatm.Key) (khatm.VerseRange, bool, error) {
	query, args, err := sq.Select("start_verse_ordinal", "end_verse_ordinal").
		From(tableRanges).
		Where(keyEq(key)).
		ToSql()
	if err != nil {
		return khatm.VerseRange{}, false, fmt.Errorf("verse range: build query: %w", err)
	}
	r := khatm.VerseRange{Key: key}
	err = q.QueryRowContext(ctx, query, args...).Scan(&r.Start, &r.End)
	if errors.Is(err, sql.ErrNoRows) {
		return khatm.VerseRange{}, false, nil
	}
	if err != nil {
		return khatm.VerseRange{}, false, classify("query verse range", err)
	}
	return r, true, nil
}

func getGroup(ctx context.Context, q querier, groupID int64) (khatm.Group, error) {
	query, args, err := sq.Select(groupColumns...).From(tableGroups).Where(sq.Eq{"group_id": groupID}).ToSql()
	if err != nil {
		return khatm.Group{}, fmt.Errorf("group: build query: %w", err)
	}
	g, err := scanGroup(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return khatm.Group{GroupID: groupID, IsActive: true}, nil
	}
	if err != nil {
		return khatm.Group{}, classify("query group", err)
	}
	return g, nil
}
