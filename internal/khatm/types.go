package khatm

import "fmt"

// Type selects which counter of a Topic is meaningful.
type Type string

const (
	TypeSalavat Type = "salavat"
	TypeZekr    Type = "zekr"
	TypeQuran   Type = "quran"
)

// ParseType accepts the canonical names plus the "ghoran" spelling used by
// the start command tags.
func ParseType(s string) (Type, error) {
	switch s {
	case "salavat":
		return TypeSalavat, nil
	case "zekr":
		return TypeZekr, nil
	case "quran", "ghoran":
		return TypeQuran, nil
	default:
		return "", fmt.Errorf("unknown khatm type %q", s)
	}
}

// UnmarshalText decodes through ParseType, so "ghoran" becomes TypeQuran and
// unknown names fail. An empty value stays empty.
func (t *Type) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = ""
		return nil
	}
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Valid reports whether t is one of the known khatm types.
func (t Type) Valid() bool {
	return t == TypeSalavat || t == TypeZekr || t == TypeQuran
}

// Key identifies a Topic. GroupID and TopicID are unique together.
type Key struct {
	GroupID int64 `json:"group_id"`
	TopicID int64 `json:"topic_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.GroupID, k.TopicID)
}

// Topic is the unit of counting.
//
// INVARIANTS:
//   - CurrentTotal >= 0
//   - For TypeQuran, CurrentTotal is the number of verses consumed since the
//     range start and CurrentVerse is the next verse to read.
//   - CompletionCount never decreases except through ResetAll.
type Topic struct {
	Key

	Name              string `json:"topic_name"`
	Type              Type   `json:"khatm_type"`
	CurrentTotal      int64  `json:"current_total"`
	CurrentVerse      int    `json:"current_verse_ordinal"`
	MinBound          int64  `json:"min_bound"`
	MaxBound          int64  `json:"max_bound"`
	StopNumber        int64  `json:"stop_number"`
	PeriodNumber      int64  `json:"period_number"`
	ResetOnPeriod     bool   `json:"reset_on_period"`
	DailyReset        bool   `json:"daily_reset"`
	IsActive          bool   `json:"is_active"`
	CompletionCount   int64  `json:"completion_count"`
	ZekrText          string `json:"zekr_text,omitempty"`
	CompletionMessage string `json:"completion_message,omitempty"`
}

// VerseRange is the sub-sequence of the verse index in scope for a quran topic.
type VerseRange struct {
	Key
	Start int `json:"start_verse_ordinal"`
	End   int `json:"end_verse_ordinal"`
}

// Len returns the number of verses in the range.
func (r VerseRange) Len() int64 {
	return int64(r.End - r.Start + 1)
}

// Contains reports whether ordinal lies inside the range.
func (r VerseRange) Contains(ordinal int) bool {
	return ordinal >= r.Start && ordinal <= r.End
}

// Group holds per-chat settings shared by all of its topics.
type Group struct {
	GroupID int64 `json:"group_id"`
	// IsActive is flipped by the activation window; contributions into an
	// inactive group are rejected.
	IsActive      bool   `json:"is_active"`
	OffHoursStart string `json:"off_hours_start,omitempty"`
	OffHoursEnd   string `json:"off_hours_end,omitempty"`
	LastTagAt     int64  `json:"last_tag_at,omitempty"`
}

// Category is the per-user counter credited by a contribution.
type Category string

const (
	CategorySalavat Category = "total_salavat"
	CategoryZekr    Category = "total_zekr"
	CategoryAyat    Category = "total_ayat"
)

// CategoryFor maps a khatm type onto its user contribution column.
func CategoryFor(t Type) Category {
	switch t {
	case TypeZekr:
		return CategoryZekr
	case TypeQuran:
		return CategoryAyat
	default:
		return CategorySalavat
	}
}

// UserContribution holds a user's cumulative totals in one topic.
type UserContribution struct {
	Key
	UserID       int64 `json:"user_id"`
	TotalSalavat int64 `json:"total_salavat"`
	TotalZekr    int64 `json:"total_zekr"`
	TotalAyat    int64 `json:"total_ayat"`
}

// Credit is an increment to one category of a user's contribution record.
type Credit struct {
	Key
	UserID   int64
	Category Category
	Amount   int64
}

// LogEntry is one append-only contribution log row.
type LogEntry struct {
	Key
	RequestID string `json:"request_id"`
	UserID    int64  `json:"user_id"`
	Amount    int64  `json:"amount"`
	// Verse is 0 for non-quran contributions.
	Verse int   `json:"verse_ordinal,omitempty"`
	Seq   int64 `json:"seq"`
}

// Contribution is the input of the counting state machine.
type Contribution struct {
	RequestID string
	Seq       int64
	UserID    int64
	Type      Type
	Amount    int64
	// Verse is the verse being read for quran topics; 0 means the topic cursor.
	Verse int
}

// Snapshot is the read-path view of a topic's progress.
type Snapshot struct {
	Key
	Type            Type   `json:"khatm_type"`
	Name            string `json:"topic_name,omitempty"`
	CurrentTotal    int64  `json:"current_total"`
	CurrentVerse    int    `json:"current_verse_ordinal,omitempty"`
	RangeStart      int    `json:"start_verse_ordinal,omitempty"`
	RangeEnd        int    `json:"end_verse_ordinal,omitempty"`
	CompletionCount int64  `json:"completion_count"`
	IsActive        bool   `json:"is_active"`
	StopNumber      int64  `json:"stop_number"`
	PeriodNumber    int64  `json:"period_number"`
}

// SnapshotOf builds the progress snapshot of a topic. rng may be nil.
func SnapshotOf(t Topic, rng *VerseRange) Snapshot {
	s := Snapshot{
		Key:             t.Key,
		Type:            t.Type,
		Name:            t.Name,
		CurrentTotal:    t.CurrentTotal,
		CompletionCount: t.CompletionCount,
		IsActive:        t.IsActive,
		StopNumber:      t.StopNumber,
		PeriodNumber:    t.PeriodNumber,
	}
	if t.Type == TypeQuran {
		s.CurrentVerse = t.CurrentVerse
		if rng != nil {
			s.RangeStart = rng.Start
			s.RangeEnd = rng.End
		}
	}
	return s
}

// Preset holds the settings applied to a topic when a khatm starts.
type Preset struct {
	MinBound          int64  `json:"min_bound"`
	MaxBound          int64  `json:"max_bound"`
	StopNumber        int64  `json:"stop_number"`
	PeriodNumber      int64  `json:"period_number"`
	ResetOnPeriod     bool   `json:"reset_on_period"`
	DailyReset        bool   `json:"daily_reset"`
	CompletionMessage string `json:"completion_message"`
}
