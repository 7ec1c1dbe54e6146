package khatm

// Transition is the result of an accepted contribution.
type Transition struct {
	Topic Topic

	// Log and Credit are written in the same transaction as Topic.
	Log    LogEntry
	Credit Credit

	// Completed is true when this contribution finished at least one khatm.
	Completed bool
	// Deactivated is true when the topic went inactive (stop, range end or
	// period without wraparound).
	Deactivated bool
	// Wrapped is true when a period threshold was crossed and the total
	// wrapped modulo the period.
	Wrapped          bool
	CompletionsAdded int64
	// Overflow is how far the raw total went beyond the stop number.
	Overflow int64
}

// Contribute applies one counting contribution to a topic. rng is required
// for quran topics and ignored otherwise.
//
// Validation happens before any field is changed: a returned error means the
// caller must not write anything. Check order is type, amount and bounds,
// verse range, then activation.
func Contribute(t Topic, rng *VerseRange, c Contribution) (Transition, error) {
	if c.Type != "" && c.Type != t.Type {
		return Transition{}, TypeMismatch(t.Key, c.Type, t.Type)
	}
	if c.Amount == 0 {
		return Transition{}, InvalidAmount(t.Key, c.Amount, t.CurrentTotal)
	}
	if mag := abs(c.Amount); mag < t.MinBound || (t.MaxBound > 0 && mag > t.MaxBound) {
		return Transition{}, OutOfBounds(t.Key, c.Amount, t.MinBound, t.MaxBound)
	}

	if t.Type == TypeQuran {
		return contributeVerses(t, rng, c)
	}

	newTotal := t.CurrentTotal + c.Amount
	if newTotal < 0 {
		return Transition{}, InvalidAmount(t.Key, c.Amount, t.CurrentTotal)
	}
	if !t.IsActive {
		return Transition{}, TopicInactive(t.Key)
	}

	tr := Transition{
		Log:    LogEntry{Key: t.Key, RequestID: c.RequestID, UserID: c.UserID, Amount: c.Amount, Seq: c.Seq},
		Credit: Credit{Key: t.Key, UserID: c.UserID, Category: CategoryFor(t.Type), Amount: c.Amount},
	}

	switch {
	case t.StopNumber > 0 && newTotal >= t.StopNumber:
		tr.Overflow = newTotal - t.StopNumber
		tr.complete(&t, 1, true)
	case t.PeriodNumber > 0 && newTotal >= t.PeriodNumber && t.ResetOnPeriod:
		var n int64
		newTotal, n = wrapPeriod(newTotal, t.PeriodNumber)
		tr.Wrapped = true
		tr.complete(&t, n, false)
	case t.PeriodNumber > 0 && newTotal >= t.PeriodNumber:
		tr.complete(&t, 1, true)
	}

	t.CurrentTotal = newTotal
	tr.Topic = t
	return tr, nil
}

func contributeVerses(t Topic, rng *VerseRange, c Contribution) (Transition, error) {
	if c.Amount < 0 {
		return Transition{}, InvalidAmount(t.Key, c.Amount, t.CurrentTotal)
	}
	if rng == nil {
		return Transition{}, VerseOutOfRange(t.Key, c.Verse, 0, 0)
	}

	verse := c.Verse
	if verse == 0 {
		verse = t.CurrentVerse
	}
	last := verse + int(c.Amount) - 1
	if !rng.Contains(verse) {
		return Transition{}, VerseOutOfRange(t.Key, verse, rng.Start, rng.End)
	}
	if !rng.Contains(last) {
		return Transition{}, VerseOutOfRange(t.Key, last, rng.Start, rng.End)
	}
	if !t.IsActive {
		return Transition{}, TopicInactive(t.Key)
	}

	newTotal := t.CurrentTotal + c.Amount
	tr := Transition{
		Log:    LogEntry{Key: t.Key, RequestID: c.RequestID, UserID: c.UserID, Amount: c.Amount, Verse: verse, Seq: c.Seq},
		Credit: Credit{Key: t.Key, UserID: c.UserID, Category: CategoryAyat, Amount: c.Amount},
	}

	switch {
	case t.StopNumber > 0 && newTotal >= t.StopNumber:
		tr.Overflow = newTotal - t.StopNumber
		tr.complete(&t, 1, true)
	case newTotal >= rng.Len():
		tr.complete(&t, 1, true)
	}

	t.CurrentTotal = newTotal
	t.CurrentVerse = last + 1
	tr.Topic = t
	return tr, nil
}

func (tr *Transition) complete(t *Topic, n int64, deactivate bool) {
	tr.Completed = true
	tr.CompletionsAdded = n
	t.CompletionCount += n
	if deactivate {
		tr.Deactivated = true
		t.IsActive = false
	}
}

// Start (re)initialises a topic for a new khatm of kind. Totals are zeroed,
// settings come from p, and the topic becomes active. CompletionCount is kept.
// For quran topics rng must be the new range; it is ignored otherwise.
func Start(t Topic, kind Type, name string, p Preset, rng *VerseRange) Topic {
	t.Type = kind
	if name != "" {
		t.Name = name
	}
	t.CurrentTotal = 0
	t.CurrentVerse = 0
	if kind == TypeQuran && rng != nil {
		t.CurrentVerse = rng.Start
	}
	t.MinBound = p.MinBound
	t.MaxBound = p.MaxBound
	t.StopNumber = p.StopNumber
	t.PeriodNumber = p.PeriodNumber
	t.ResetOnPeriod = p.ResetOnPeriod
	t.DailyReset = p.DailyReset
	t.CompletionMessage = p.CompletionMessage
	if kind != TypeZekr {
		t.ZekrText = ""
	}
	t.IsActive = true
	return t
}

// ResetDaily zeroes the running total and rewinds the quran cursor.
// Applying it twice is the same as applying it once.
func ResetDaily(t Topic, rng *VerseRange) Topic {
	t.CurrentTotal = 0
	if t.Type == TypeQuran && rng != nil {
		t.CurrentVerse = rng.Start
	}
	return t
}

// ResetPeriodic closes periods that were reached without a contribution
// noticing them (for example after the period number was lowered). It wraps
// the total the same way Contribute does: one completion per whole period,
// remainder kept. It only acts
// on non-quran wraparound topics whose total reached a positive period number;
// changed reports whether it did, in which case the caller purges the log.
//
// Topics without wraparound are left alone: Contribute already completed and
// deactivated them when they crossed the period.
func ResetPeriodic(t Topic) (out Topic, changed bool) {
	if t.Type == TypeQuran || !t.ResetOnPeriod || t.PeriodNumber <= 0 || t.CurrentTotal < t.PeriodNumber {
		return t, false
	}
	var n int64
	t.CurrentTotal, n = wrapPeriod(t.CurrentTotal, t.PeriodNumber)
	t.CompletionCount += n
	return t, true
}

// wrapPeriod splits total into whole periods and the remainder carried into
// the next one. period must be positive.
func wrapPeriod(total, period int64) (rest, completions int64) {
	return total % period, total / period
}

// ResetAll returns the topic to the state right after Start. The caller also
// purges the topic's log and user contributions.
func ResetAll(t Topic, rng *VerseRange) Topic {
	t = ResetDaily(t, rng)
	t.CompletionCount = 0
	t.IsActive = true
	return t
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
