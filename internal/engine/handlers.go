package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
)

// outcome is what a handler reports back to process.
type outcome struct {
	duplicate    bool
	snapshot     *khatm.Snapshot
	contribution *ContributionOutcome
	affected     int
}

// dispatch routes a request to its handler inside the attempt's transaction.
// Handlers validate before writing; any returned error rolls the whole
// request back.
func (e *Engine) dispatch(ctx context.Context, tx khatm.Tx, env envelope) (outcome, error) {
	switch r := env.req.(type) {
	case mutation.Contribution:
		return e.contribute(ctx, tx, env, r)

	case mutation.StartSalavat:
		return e.start(ctx, tx, r.Target(), khatm.TypeSalavat, r.TopicName, "", 0, 0)
	case mutation.StartZekr:
		return e.start(ctx, tx, r.Target(), khatm.TypeZekr, r.TopicName, r.ZekrText, 0, 0)
	case mutation.StartQuran:
		return e.start(ctx, tx, r.Target(), khatm.TypeQuran, r.TopicName, "", r.StartVerse, r.EndVerse)

	case mutation.Deactivate:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			t.IsActive = false
			return nil
		})
	case mutation.SetBounds:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			return setBounds(t, r.Min, r.Max)
		})
	case mutation.SetPeriod:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			if r.PeriodNumber < 0 {
				return khatm.InvalidConfig(t.Key, "period number %d is negative", r.PeriodNumber)
			}
			t.PeriodNumber = r.PeriodNumber
			t.ResetOnPeriod = r.ResetOnPeriod
			return nil
		})
	case mutation.SetStop:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			if r.StopNumber < 0 {
				return khatm.InvalidConfig(t.Key, "stop number %d is negative", r.StopNumber)
			}
			t.StopNumber = r.StopNumber
			return nil
		})
	case mutation.SetRange:
		return e.setRange(ctx, tx, r)
	case mutation.SetZekrText:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			if t.Type != khatm.TypeZekr {
				return khatm.InvalidConfig(t.Key, "zekr text on a %s topic", t.Type)
			}
			text := clean(r.ZekrText)
			if text == "" {
				return khatm.InvalidConfig(t.Key, "zekr text is empty")
			}
			t.ZekrText = text
			return nil
		})
	case mutation.SetCompletionMessage:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			t.CompletionMessage = clean(r.CompletionMessage)
			return nil
		})
	case mutation.SetDailyReset:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			t.DailyReset = r.Enabled
			return nil
		})
	case mutation.RenameTopic:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			name := clean(r.TopicName)
			if name == "" {
				return khatm.InvalidConfig(t.Key, "topic name is empty")
			}
			t.Name = name
			return nil
		})
	case mutation.DeleteTopic:
		return e.deleteTopic(ctx, tx, r.Target())

	case mutation.ResetDailyGroup:
		return e.resetDailyGroup(ctx, tx, r)
	case mutation.ResetDailyTopic:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, rng *khatm.VerseRange) error {
			*t = khatm.ResetDaily(*t, rng)
			return nil
		})
	case mutation.ResetPeriodicTopic:
		return e.resetPeriodic(ctx, tx, r)
	case mutation.ResetStats:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, _ *khatm.VerseRange) error {
			return purge(ctx, tx, t.Key)
		})
	case mutation.ResetAll:
		return e.updateTopic(ctx, tx, r.Target(), func(t *khatm.Topic, rng *khatm.VerseRange) error {
			*t = khatm.ResetAll(*t, rng)
			return purge(ctx, tx, t.Key)
		})

	case mutation.SetGroupActive:
		return e.updateGroup(ctx, tx, r.Target().GroupID, func(g *khatm.Group) error {
			g.IsActive = r.IsActive
			return nil
		})
	case mutation.SetOffHours:
		return e.updateGroup(ctx, tx, r.Target().GroupID, func(g *khatm.Group) error {
			if err := validateOffHours(r.Start, r.End); err != nil {
				return khatm.InvalidConfig(r.Target(), "%v", err)
			}
			g.OffHoursStart = r.Start
			g.OffHoursEnd = r.End
			return nil
		})
	case mutation.SetTagTimestamp:
		return e.updateGroup(ctx, tx, r.Target().GroupID, func(g *khatm.Group) error {
			g.LastTagAt = r.TaggedAt
			return nil
		})

	default:
		return outcome{}, khatm.UnknownMutation(env.req.Target(), string(env.req.Kind()))
	}
}

func (e *Engine) contribute(ctx context.Context, tx khatm.Tx, env envelope, r mutation.Contribution) (outcome, error) {
	if env.id != "" {
		dup, err := tx.Processed(ctx, env.id)
		if err != nil {
			return outcome{}, err
		}
		if dup {
			return outcome{duplicate: true}, nil
		}
	}

	key := r.Target()
	group, err := tx.Group(ctx, key.GroupID)
	if err != nil {
		return outcome{}, err
	}
	if !group.IsActive {
		return outcome{}, khatm.GroupInactive(key)
	}

	topic, rng, err := loadTopic(ctx, tx, key)
	if err != nil {
		return outcome{}, err
	}

	tr, err := khatm.Contribute(topic, rng, khatm.Contribution{
		RequestID: env.id,
		Seq:       env.seq,
		UserID:    r.UserID,
		Type:      r.Type,
		Amount:    r.Amount,
		Verse:     r.Verse,
	})
	if err != nil {
		return outcome{}, err
	}

	if err := tx.PutTopic(ctx, tr.Topic); err != nil {
		return outcome{}, err
	}
	if err := tx.AppendLog(ctx, tr.Log); err != nil {
		return outcome{}, err
	}
	if err := tx.Credit(ctx, tr.Credit); err != nil {
		return outcome{}, err
	}
	if env.id != "" {
		if err := tx.MarkProcessed(ctx, env.id, env.seq); err != nil {
			return outcome{}, err
		}
	}

	co := &ContributionOutcome{
		Verse:            tr.Log.Verse,
		Completed:        tr.Completed,
		Deactivated:      tr.Deactivated,
		Wrapped:          tr.Wrapped,
		CompletionsAdded: tr.CompletionsAdded,
		Overflow:         tr.Overflow,
	}
	if tr.Completed {
		co.Message = tr.Topic.CompletionMessage
	}
	snap := khatm.SnapshotOf(tr.Topic, rng)
	return outcome{snapshot: &snap, contribution: co}, nil
}

// start (re)initialises a topic. A missing topic is created.
func (e *Engine) start(ctx context.Context, tx khatm.Tx, key khatm.Key, kind khatm.Type, name, zekr string, first, last int) (outcome, error) {
	topic, err := tx.Topic(ctx, key)
	switch {
	case errors.Is(err, khatm.ErrNotFound):
		topic = khatm.Topic{Key: key}
	case err != nil:
		return outcome{}, err
	}

	var rng *khatm.VerseRange
	if kind == khatm.TypeQuran {
		if first == 0 && last == 0 {
			first, last = 1, e.verses.Len()
		}
		if err := e.verses.ValidRange(first, last); err != nil {
			return outcome{}, khatm.InvalidConfig(key, "verse range: %v", err)
		}
		rng = &khatm.VerseRange{Key: key, Start: first, End: last}
	}

	topic = khatm.Start(topic, kind, clean(name), e.presets[kind], rng)
	if kind == khatm.TypeZekr {
		if text := clean(zekr); text != "" {
			topic.ZekrText = text
		}
	}

	if err := tx.PutTopic(ctx, topic); err != nil {
		return outcome{}, err
	}
	if rng != nil {
		err = tx.PutRange(ctx, *rng)
	} else {
		err = tx.DeleteRange(ctx, key)
	}
	if err != nil {
		return outcome{}, err
	}

	snap := khatm.SnapshotOf(topic, rng)
	return outcome{snapshot: &snap}, nil
}

func (e *Engine) setRange(ctx context.Context, tx khatm.Tx, r mutation.SetRange) (outcome, error) {
	key := r.Target()
	topic, _, err := loadTopic(ctx, tx, key)
	if err != nil {
		return outcome{}, err
	}
	if topic.Type != khatm.TypeQuran {
		return outcome{}, khatm.InvalidConfig(key, "verse range on a %s topic", topic.Type)
	}
	if err := e.verses.ValidRange(r.StartVerse, r.EndVerse); err != nil {
		return outcome{}, khatm.InvalidConfig(key, "verse range: %v", err)
	}

	rng := khatm.VerseRange{Key: key, Start: r.StartVerse, End: r.EndVerse}
	topic.CurrentTotal = 0
	topic.CurrentVerse = rng.Start
	if err := tx.PutTopic(ctx, topic); err != nil {
		return outcome{}, err
	}
	if err := tx.PutRange(ctx, rng); err != nil {
		return outcome{}, err
	}

	snap := khatm.SnapshotOf(topic, &rng)
	return outcome{snapshot: &snap}, nil
}

func (e *Engine) deleteTopic(ctx context.Context, tx khatm.Tx, key khatm.Key) (outcome, error) {
	if _, _, err := loadTopic(ctx, tx, key); err != nil {
		return outcome{}, err
	}
	if err := tx.DeleteRange(ctx, key); err != nil {
		return outcome{}, err
	}
	if err := purge(ctx, tx, key); err != nil {
		return outcome{}, err
	}
	if err := tx.DeleteTopic(ctx, key); err != nil {
		return outcome{}, err
	}
	return outcome{}, nil
}

// resetDailyGroup resets every daily-reset topic of the group with the
// requested type. An empty type resets all of them.
func (e *Engine) resetDailyGroup(ctx context.Context, tx khatm.Tx, r mutation.ResetDailyGroup) (outcome, error) {
	topics, err := tx.TopicsInGroup(ctx, r.Target().GroupID)
	if err != nil {
		return outcome{}, err
	}

	var out outcome
	for _, t := range topics {
		if !t.DailyReset || (r.Type != "" && t.Type != r.Type) {
			continue
		}
		rng, err := rangeOf(ctx, tx, t)
		if err != nil {
			return outcome{}, err
		}
		reset := khatm.ResetDaily(t, rng)
		if reset == t {
			continue
		}
		if err := tx.PutTopic(ctx, reset); err != nil {
			return outcome{}, err
		}
		out.affected++
	}
	return out, nil
}

func (e *Engine) resetPeriodic(ctx context.Context, tx khatm.Tx, r mutation.ResetPeriodicTopic) (outcome, error) {
	key := r.Target()
	topic, rng, err := loadTopic(ctx, tx, key)
	if err != nil {
		return outcome{}, err
	}
	if r.Type != "" && r.Type != topic.Type {
		return outcome{}, khatm.TypeMismatch(key, r.Type, topic.Type)
	}

	reset, changed := khatm.ResetPeriodic(topic)
	if changed {
		if err := tx.PutTopic(ctx, reset); err != nil {
			return outcome{}, err
		}
		if err := tx.PurgeLog(ctx, key); err != nil {
			return outcome{}, err
		}
	}

	snap := khatm.SnapshotOf(reset, rng)
	out := outcome{snapshot: &snap}
	if changed {
		out.affected = 1
	}
	return out, nil
}

// updateTopic loads a topic, lets fn change it and writes it back.
func (e *Engine) updateTopic(ctx context.Context, tx khatm.Tx, key khatm.Key, fn func(t *khatm.Topic, rng *khatm.VerseRange) error) (outcome, error) {
	topic, rng, err := loadTopic(ctx, tx, key)
	if err != nil {
		return outcome{}, err
	}
	if err := fn(&topic, rng); err != nil {
		return outcome{}, err
	}
	if err := tx.PutTopic(ctx, topic); err != nil {
		return outcome{}, err
	}
	snap := khatm.SnapshotOf(topic, rng)
	return outcome{snapshot: &snap}, nil
}

func (e *Engine) updateGroup(ctx context.Context, tx khatm.Tx, groupID int64, fn func(g *khatm.Group) error) (outcome, error) {
	g, err := tx.Group(ctx, groupID)
	if err != nil {
		return outcome{}, err
	}
	if err := fn(&g); err != nil {
		return outcome{}, err
	}
	if err := tx.PutGroup(ctx, g); err != nil {
		return outcome{}, err
	}
	return outcome{}, nil
}

// loadTopic reads a topic and, for quran topics, its range.
func loadTopic(ctx context.Context, tx khatm.Tx, key khatm.Key) (khatm.Topic, *khatm.VerseRange, error) {
	topic, err := tx.Topic(ctx, key)
	if errors.Is(err, khatm.ErrNotFound) {
		return khatm.Topic{}, nil, khatm.TopicNotFound(key)
	}
	if err != nil {
		return khatm.Topic{}, nil, err
	}
	rng, err := rangeOf(ctx, tx, topic)
	if err != nil {
		return khatm.Topic{}, nil, err
	}
	return topic, rng, nil
}

func rangeOf(ctx context.Context, tx khatm.Tx, t khatm.Topic) (*khatm.VerseRange, error) {
	if t.Type != khatm.TypeQuran {
		return nil, nil
	}
	rng, ok, err := tx.Range(ctx, t.Key)
	if err != nil || !ok {
		return nil, err
	}
	return &rng, nil
}

func purge(ctx context.Context, tx khatm.Tx, key khatm.Key) error {
	if err := tx.PurgeLog(ctx, key); err != nil {
		return err
	}
	return tx.PurgeContributions(ctx, key)
}

func setBounds(t *khatm.Topic, lo, hi *int64) error {
	next := *t
	if lo != nil {
		next.MinBound = *lo
	}
	if hi != nil {
		next.MaxBound = *hi
	}
	if next.MinBound < 0 || next.MaxBound < 0 {
		return khatm.InvalidConfig(t.Key, "bounds [%d, %d] are negative", next.MinBound, next.MaxBound)
	}
	if next.MaxBound > 0 && next.MaxBound < next.MinBound {
		return khatm.InvalidConfig(t.Key, "max bound %d below min bound %d", next.MaxBound, next.MinBound)
	}
	*t = next
	return nil
}

// validateOffHours accepts two "HH:MM" times or two empty strings.
func validateOffHours(start, end string) error {
	if start == "" && end == "" {
		return nil
	}
	for _, s := range []string{start, end} {
		if _, err := time.Parse("15:04", s); err != nil {
			return fmt.Errorf("off hours %q: want HH:MM", s)
		}
	}
	return nil
}

// clean trims and NFC-normalizes free text.
func clean(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
