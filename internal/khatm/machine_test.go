package khatm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = Key{GroupID: 100, TopicID: 7}

func salavatTopic() Topic {
	return Topic{Key: testKey, Type: TypeSalavat, MinBound: 1, MaxBound: 1000, IsActive: true}
}

func quranTopic(start, end int) (Topic, *VerseRange) {
	rng := &VerseRange{Key: testKey, Start: start, End: end}
	return Topic{Key: testKey, Type: TypeQuran, MinBound: 1, MaxBound: 20, IsActive: true, CurrentVerse: start}, rng
}

func TestContribute_AccumulatesTotal(t *testing.T) {
	topic := salavatTopic()

	tr, err := Contribute(topic, nil, Contribution{RequestID: "r1", Seq: 1, UserID: 9, Type: TypeSalavat, Amount: 14})
	require.NoError(t, err)

	assert.Equal(t, int64(14), tr.Topic.CurrentTotal)
	assert.True(t, tr.Topic.IsActive)
	assert.False(t, tr.Completed)
	assert.Equal(t, LogEntry{Key: testKey, RequestID: "r1", UserID: 9, Amount: 14, Seq: 1}, tr.Log)
	assert.Equal(t, Credit{Key: testKey, UserID: 9, Category: CategorySalavat, Amount: 14}, tr.Credit)
}

func TestContribute_PeriodicWraparound(t *testing.T) {
	topic := salavatTopic()
	topic.PeriodNumber = 100
	topic.ResetOnPeriod = true
	topic.CurrentTotal = 95
	topic.CompletionCount = 3

	tr, err := Contribute(topic, nil, Contribution{UserID: 1, Amount: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(5), tr.Topic.CurrentTotal)
	assert.Equal(t, int64(4), tr.Topic.CompletionCount)
	assert.True(t, tr.Topic.IsActive)
	assert.True(t, tr.Completed)
	assert.True(t, tr.Wrapped)
	assert.False(t, tr.Deactivated)
	assert.Equal(t, int64(1), tr.CompletionsAdded)
}

func TestContribute_WraparoundCrossingSeveralPeriods(t *testing.T) {
	topic := salavatTopic()
	topic.PeriodNumber = 100
	topic.ResetOnPeriod = true
	topic.CurrentTotal = 50

	tr, err := Contribute(topic, nil, Contribution{UserID: 1, Amount: 260})
	require.NoError(t, err)

	assert.Equal(t, int64(10), tr.Topic.CurrentTotal)
	assert.Equal(t, int64(3), tr.CompletionsAdded)
	assert.Equal(t, int64(3), tr.Topic.CompletionCount)
}

func TestContribute_PeriodWithoutWrapDeactivates(t *testing.T) {
	topic := salavatTopic()
	topic.PeriodNumber = 100
	topic.CurrentTotal = 95

	tr, err := Contribute(topic, nil, Contribution{UserID: 1, Amount: 10})
	require.NoError(t, err)

	assert.Equal(t, int64(105), tr.Topic.CurrentTotal)
	assert.False(t, tr.Topic.IsActive)
	assert.True(t, tr.Deactivated)
	assert.Equal(t, int64(1), tr.Topic.CompletionCount)
}

func TestContribute_StopNumberWinsOverPeriod(t *testing.T) {
	topic := salavatTopic()
	topic.StopNumber = 1000
	topic.PeriodNumber = 100
	topic.ResetOnPeriod = true
	topic.CurrentTotal = 990

	tr, err := Contribute(topic, nil, Contribution{UserID: 1, Amount: 25})
	require.NoError(t, err)

	assert.Equal(t, int64(1015), tr.Topic.CurrentTotal)
	assert.Equal(t, int64(15), tr.Overflow)
	assert.False(t, tr.Topic.IsActive)
	assert.False(t, tr.Wrapped)
	assert.Equal(t, int64(1), tr.Topic.CompletionCount)
}

func TestContribute_NegativeCorrection(t *testing.T) {
	topic := salavatTopic()
	topic.CurrentTotal = 20

	tr, err := Contribute(topic, nil, Contribution{UserID: 1, Amount: -5})
	require.NoError(t, err)
	assert.Equal(t, int64(15), tr.Topic.CurrentTotal)
	assert.Equal(t, int64(-5), tr.Credit.Amount)
}

func TestContribute_Rejections(t *testing.T) {
	inactive := salavatTopic()
	inactive.IsActive = false

	low := salavatTopic()
	low.CurrentTotal = 3

	tests := []struct {
		name  string
		topic Topic
		c     Contribution
		code  ErrorCode
	}{
		{"zero amount", salavatTopic(), Contribution{Amount: 0}, ErrCodeInvalidAmount},
		{"underflow", low, Contribution{Amount: -4}, ErrCodeInvalidAmount},
		{"above max", salavatTopic(), Contribution{Amount: 1001}, ErrCodeOutOfBounds},
		{"below min magnitude", Topic{Key: testKey, Type: TypeZekr, MinBound: 10, IsActive: true}, Contribution{Amount: 5}, ErrCodeOutOfBounds},
		{"type mismatch", salavatTopic(), Contribution{Type: TypeZekr, Amount: 1}, ErrCodeTypeMismatch},
		{"inactive", inactive, Contribution{Amount: 1}, ErrCodeTopicInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Contribute(tt.topic, nil, tt.c)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.True(t, IsValidation(err))
			assert.Equal(t, Transition{}, tr)
		})
	}
}

func TestContribute_UnlimitedMaxBound(t *testing.T) {
	topic := salavatTopic()
	topic.MaxBound = 0

	tr, err := Contribute(topic, nil, Contribution{Amount: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), tr.Topic.CurrentTotal)
}

func TestContribute_QuranCompletesAtRangeEnd(t *testing.T) {
	topic, rng := quranTopic(1, 10)

	for i := 1; i <= 10; i++ {
		tr, err := Contribute(topic, rng, Contribution{UserID: 4, Type: TypeQuran, Amount: 1, Verse: i})
		require.NoError(t, err, "verse %d", i)
		assert.Equal(t, i, tr.Log.Verse)
		assert.Equal(t, CategoryAyat, tr.Credit.Category)
		topic = tr.Topic
		if i < 10 {
			assert.True(t, topic.IsActive)
			assert.Equal(t, i+1, topic.CurrentVerse)
		}
	}

	assert.False(t, topic.IsActive)
	assert.Equal(t, int64(10), topic.CurrentTotal)
	assert.Equal(t, int64(1), topic.CompletionCount)

	_, err := Contribute(topic, rng, Contribution{UserID: 4, Type: TypeQuran, Amount: 1, Verse: 11})
	require.Error(t, err)
	assert.Equal(t, ErrCodeVerseOutOfRange, CodeOf(err))
}

func TestContribute_QuranUsesCursor(t *testing.T) {
	topic, rng := quranTopic(8, 293)
	topic.CurrentVerse = 20

	tr, err := Contribute(topic, rng, Contribution{UserID: 1, Amount: 3})
	require.NoError(t, err)

	assert.Equal(t, 20, tr.Log.Verse)
	assert.Equal(t, 23, tr.Topic.CurrentVerse)
	assert.Equal(t, int64(3), tr.Topic.CurrentTotal)
}

func TestContribute_QuranRejections(t *testing.T) {
	topic, rng := quranTopic(1, 10)

	_, err := Contribute(topic, rng, Contribution{Amount: 1, Verse: 12})
	assert.Equal(t, ErrCodeVerseOutOfRange, CodeOf(err))

	_, err = Contribute(topic, rng, Contribution{Amount: 3, Verse: 9})
	assert.Equal(t, ErrCodeVerseOutOfRange, CodeOf(err))

	_, err = Contribute(topic, nil, Contribution{Amount: 1})
	assert.Equal(t, ErrCodeVerseOutOfRange, CodeOf(err))

	_, err = Contribute(topic, rng, Contribution{Amount: -1})
	assert.Equal(t, ErrCodeInvalidAmount, CodeOf(err))

	_, err = Contribute(topic, rng, Contribution{Amount: 21})
	assert.Equal(t, ErrCodeOutOfBounds, CodeOf(err))
}

func TestContribute_QuranStopNumber(t *testing.T) {
	topic, rng := quranTopic(1, 100)
	topic.StopNumber = 5

	tr, err := Contribute(topic, rng, Contribution{Amount: 5})
	require.NoError(t, err)
	assert.True(t, tr.Deactivated)
	assert.Equal(t, int64(0), tr.Overflow)
	assert.Equal(t, 6, tr.Topic.CurrentVerse)
}

func TestStart(t *testing.T) {
	old := salavatTopic()
	old.CurrentTotal = 42
	old.CompletionCount = 2
	old.IsActive = false
	old.ZekrText = "subhanallah"

	p := Preset{MinBound: 1, MaxBound: 50, PeriodNumber: 14000, ResetOnPeriod: true, CompletionMessage: "done"}
	rng := &VerseRange{Key: testKey, Start: 8, End: 293}

	got := Start(old, TypeQuran, "baqara", p, rng)
	assert.Equal(t, TypeQuran, got.Type)
	assert.Equal(t, "baqara", got.Name)
	assert.Equal(t, int64(0), got.CurrentTotal)
	assert.Equal(t, 8, got.CurrentVerse)
	assert.Equal(t, int64(50), got.MaxBound)
	assert.Equal(t, int64(14000), got.PeriodNumber)
	assert.Equal(t, "done", got.CompletionMessage)
	assert.Empty(t, got.ZekrText)
	assert.True(t, got.IsActive)
	assert.Equal(t, int64(2), got.CompletionCount)

	renamed := Start(got, TypeSalavat, "", p, nil)
	assert.Equal(t, "baqara", renamed.Name)
	assert.Equal(t, 0, renamed.CurrentVerse)
}

func TestResetDaily_Idempotent(t *testing.T) {
	topic, rng := quranTopic(1, 10)
	topic.CurrentTotal = 4
	topic.CurrentVerse = 5

	once := ResetDaily(topic, rng)
	twice := ResetDaily(once, rng)

	assert.Equal(t, once, twice)
	assert.Equal(t, int64(0), once.CurrentTotal)
	assert.Equal(t, 1, once.CurrentVerse)
	assert.True(t, once.IsActive)
}

func TestResetPeriodic(t *testing.T) {
	topic := salavatTopic()
	topic.PeriodNumber = 100
	topic.ResetOnPeriod = true
	topic.CurrentTotal = 120

	got, changed := ResetPeriodic(topic)
	require.True(t, changed)
	assert.Equal(t, int64(20), got.CurrentTotal)
	assert.Equal(t, int64(1), got.CompletionCount)

	again, changed := ResetPeriodic(got)
	assert.False(t, changed)
	assert.Equal(t, got, again)

	several := topic
	several.CurrentTotal = 250
	got, changed = ResetPeriodic(several)
	require.True(t, changed)
	assert.Equal(t, int64(50), got.CurrentTotal)
	assert.Equal(t, int64(2), got.CompletionCount)

	// Same outcome as a contribution that lands on 250.
	viaContribution := topic
	viaContribution.CurrentTotal = 0
	tr, err := Contribute(viaContribution, nil, Contribution{UserID: 1, Amount: 250})
	require.NoError(t, err)
	assert.Equal(t, got.CurrentTotal, tr.Topic.CurrentTotal)
	assert.Equal(t, got.CompletionCount, tr.Topic.CompletionCount)

	noWrap := topic
	noWrap.ResetOnPeriod = false
	_, changed = ResetPeriodic(noWrap)
	assert.False(t, changed)

	q, _ := quranTopic(1, 10)
	q.PeriodNumber = 1
	q.ResetOnPeriod = true
	q.CurrentTotal = 5
	_, changed = ResetPeriodic(q)
	assert.False(t, changed)
}

func TestResetAll(t *testing.T) {
	topic, rng := quranTopic(5, 10)
	topic.CurrentTotal = 6
	topic.CurrentVerse = 11
	topic.CompletionCount = 3
	topic.IsActive = false

	got := ResetAll(topic, rng)
	assert.Equal(t, int64(0), got.CurrentTotal)
	assert.Equal(t, 5, got.CurrentVerse)
	assert.Equal(t, int64(0), got.CompletionCount)
	assert.True(t, got.IsActive)
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := ProcessingFailed(testKey, 3, cause)

	assert.True(t, errors.Is(err, ErrProcessingFailed))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "PROCESSING_FAILED: dropped after 3 attempts (topic=100/7): database is locked", err.Error())

	assert.True(t, errors.Is(TopicNotFound(testKey), ErrNotFound))
	assert.True(t, errors.Is(UnknownMutation(Key{}, "x"), ErrUnknownMutation))
	assert.Equal(t, ErrorCode(""), CodeOf(cause))
}

func TestSnapshotOf(t *testing.T) {
	topic, rng := quranTopic(8, 293)
	topic.CurrentVerse = 30
	topic.CurrentTotal = 22

	s := SnapshotOf(topic, rng)
	assert.Equal(t, 8, s.RangeStart)
	assert.Equal(t, 293, s.RangeEnd)
	assert.Equal(t, 30, s.CurrentVerse)

	s = SnapshotOf(salavatTopic(), nil)
	assert.Zero(t, s.RangeStart)
	assert.Zero(t, s.CurrentVerse)
}
