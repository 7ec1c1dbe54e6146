// Package mutation defines the closed set of requests accepted by the
// mutation queue.
//
// Every request kind is a struct carrying only the fields it needs plus the
// Target topic. The Request interface is sealed with an unexported method,
// so the engine's type switch over the kinds in this file is the complete
// vocabulary. Kinds that arrive over the wire with an unrecognised tag decode
// to Unknown, which the processor logs and drops.
package mutation

import (
	"github.com/roach88/khatm/internal/khatm"
)

// Kind is the wire discriminator of a request.
type Kind string

const (
	KindContribution         Kind = "contribution"
	KindStartSalavat         Kind = "start_khatm_salavat"
	KindStartZekr            Kind = "start_khatm_zekr"
	KindStartQuran           Kind = "start_khatm_ghoran"
	KindDeactivate           Kind = "deactivate_khatm"
	KindSetBounds            Kind = "set_bounds"
	KindSetPeriod            Kind = "set_period"
	KindSetStop              Kind = "set_stop"
	KindSetRange             Kind = "set_range"
	KindSetZekrText          Kind = "set_zekr_text"
	KindSetCompletionMessage Kind = "set_completion_message"
	KindSetDailyReset        Kind = "set_daily_reset"
	KindRenameTopic          Kind = "rename_topic"
	KindDeleteTopic          Kind = "delete_topic"
	KindResetDailyGroup      Kind = "reset_daily_group"
	KindResetDailyTopic      Kind = "reset_daily_topic"
	KindResetPeriodicTopic   Kind = "reset_periodic_topic"
	KindResetStats           Kind = "reset_stats"
	KindResetAll             Kind = "reset_all"
	KindSetGroupActive       Kind = "set_group_active"
	KindSetOffHours          Kind = "set_off_hours"
	KindSetTagTimestamp      Kind = "set_tag_timestamp"
)

// Target is the (group, topic) a request addresses. Group-wide kinds ignore
// TopicID.
type Target = khatm.Key

// Request is one typed intent to change Counter Store state.
type Request interface {
	Kind() Kind
	Target() Target
	isRequest()
}

// Base carries the target shared by every kind.
type Base struct {
	Key Target `json:"-"`
}

func (b Base) Target() Target { return b.Key }
func (Base) isRequest()       {}

// Contribution counts salavat, zekr or quran verses for a user.
type Contribution struct {
	Base
	UserID int64      `json:"user_id"`
	Amount int64      `json:"amount"`
	Type   khatm.Type `json:"khatm_type"`
	// Verse is the verse ordinal read; 0 means the topic's cursor.
	Verse int `json:"verse_ordinal,omitempty"`
}

func (Contribution) Kind() Kind { return KindContribution }

// StartSalavat starts (or restarts) a salavat khatm on the topic.
type StartSalavat struct {
	Base
	TopicName string `json:"topic_name"`
}

func (StartSalavat) Kind() Kind { return KindStartSalavat }

// StartZekr starts (or restarts) a zekr khatm with the phrase to recite.
type StartZekr struct {
	Base
	TopicName string `json:"topic_name"`
	ZekrText  string `json:"zekr_text"`
}

func (StartZekr) Kind() Kind { return KindStartZekr }

// StartQuran starts (or restarts) a quran khatm. Zero bounds select the whole
// index.
type StartQuran struct {
	Base
	TopicName  string `json:"topic_name"`
	StartVerse int    `json:"start_verse_ordinal,omitempty"`
	EndVerse   int    `json:"end_verse_ordinal,omitempty"`
}

func (StartQuran) Kind() Kind { return KindStartQuran }

// Deactivate stops counting on the topic without touching totals.
type Deactivate struct{ Base }

func (Deactivate) Kind() Kind { return KindDeactivate }

// SetBounds changes per-contribution bounds; nil leaves a bound unchanged.
type SetBounds struct {
	Base
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

func (SetBounds) Kind() Kind { return KindSetBounds }

// SetPeriod changes the soft ceiling and its wraparound policy.
type SetPeriod struct {
	Base
	PeriodNumber  int64 `json:"period_number"`
	ResetOnPeriod bool  `json:"reset_on_period"`
}

func (SetPeriod) Kind() Kind { return KindSetPeriod }

// SetStop changes the hard ceiling; 0 disables it.
type SetStop struct {
	Base
	StopNumber int64 `json:"stop_number"`
}

func (SetStop) Kind() Kind { return KindSetStop }

// SetRange replaces a quran topic's verse range and rewinds its cursor.
type SetRange struct {
	Base
	StartVerse int `json:"start_verse_ordinal"`
	EndVerse   int `json:"end_verse_ordinal"`
}

func (SetRange) Kind() Kind { return KindSetRange }

// SetZekrText replaces the phrase of a zekr topic.
type SetZekrText struct {
	Base
	ZekrText string `json:"zekr_text"`
}

func (SetZekrText) Kind() Kind { return KindSetZekrText }

// SetCompletionMessage overrides the text shown on completion; empty clears it.
type SetCompletionMessage struct {
	Base
	CompletionMessage string `json:"completion_message"`
}

func (SetCompletionMessage) Kind() Kind { return KindSetCompletionMessage }

// SetDailyReset flags the topic for the scheduler's daily reset.
type SetDailyReset struct {
	Base
	Enabled bool `json:"enabled"`
}

func (SetDailyReset) Kind() Kind { return KindSetDailyReset }

// RenameTopic changes the topic's display name.
type RenameTopic struct {
	Base
	TopicName string `json:"topic_name"`
}

func (RenameTopic) Kind() Kind { return KindRenameTopic }

// DeleteTopic removes the topic with its range, log and contributions.
type DeleteTopic struct{ Base }

func (DeleteTopic) Kind() Kind { return KindDeleteTopic }

// ResetDailyGroup applies the daily reset to every daily-reset topic of the
// group with the given khatm type.
type ResetDailyGroup struct {
	Base
	Type khatm.Type `json:"khatm_type"`
}

func (ResetDailyGroup) Kind() Kind { return KindResetDailyGroup }

// ResetDailyTopic applies the daily reset to one topic.
type ResetDailyTopic struct{ Base }

func (ResetDailyTopic) Kind() Kind { return KindResetDailyTopic }

// ResetPeriodicTopic closes a reached period on one topic.
type ResetPeriodicTopic struct {
	Base
	Type khatm.Type `json:"khatm_type"`
}

func (ResetPeriodicTopic) Kind() Kind { return KindResetPeriodicTopic }

// ResetStats purges the topic's contribution log and user totals.
type ResetStats struct{ Base }

func (ResetStats) Kind() Kind { return KindResetStats }

// ResetAll returns the topic to its freshly started state.
type ResetAll struct{ Base }

func (ResetAll) Kind() Kind { return KindResetAll }

// SetGroupActive switches the whole group on or off.
type SetGroupActive struct {
	Base
	IsActive bool `json:"is_active"`
}

func (SetGroupActive) Kind() Kind { return KindSetGroupActive }

// SetOffHours sets the group's daily off-hours window ("HH:MM" in the
// scheduler's time zone). Empty values disable the window.
type SetOffHours struct {
	Base
	Start string `json:"start"`
	End   string `json:"end"`
}

func (SetOffHours) Kind() Kind { return KindSetOffHours }

// SetTagTimestamp records when members were last tagged.
type SetTagTimestamp struct {
	Base
	TaggedAt int64 `json:"tagged_at"`
}

func (SetTagTimestamp) Kind() Kind { return KindSetTagTimestamp }

// Unknown is a decoded request whose tag is not part of the vocabulary.
type Unknown struct {
	Base
	Tag string `json:"-"`
}

func (u Unknown) Kind() Kind { return Kind(u.Tag) }

// At returns the Base addressing (group, topic).
func At(groupID, topicID int64) Base {
	return Base{Key: Target{GroupID: groupID, TopicID: topicID}}
}
