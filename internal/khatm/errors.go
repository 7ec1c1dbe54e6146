package khatm

import (
	"errors"
	"fmt"
)

// Category sentinels. Every *Error unwraps to exactly one of them.
var (
	// ErrValidation marks a request rejected before any write.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a request addressing a topic that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnknownMutation marks a request with an unrecognised type tag.
	ErrUnknownMutation = errors.New("unknown mutation type")

	// ErrProcessingFailed marks a request dropped after retry exhaustion.
	ErrProcessingFailed = errors.New("processing failed")
)

var (
	// ErrContention is returned by the store when the database is
	// temporarily locked. The processor retries requests failing with it.
	ErrContention = errors.New("transient storage contention")

	// ErrQueueClosed is returned by Enqueue after shutdown.
	ErrQueueClosed = errors.New("mutation queue closed")
)

// ErrorCode identifies the kind of a rejected or failed request.
type ErrorCode string

const (
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeOutOfBounds      ErrorCode = "OUT_OF_BOUNDS"
	ErrCodeVerseOutOfRange  ErrorCode = "VERSE_OUT_OF_RANGE"
	ErrCodeTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	ErrCodeTopicInactive    ErrorCode = "TOPIC_INACTIVE"
	ErrCodeGroupInactive    ErrorCode = "GROUP_INACTIVE"
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeTopicNotFound    ErrorCode = "TOPIC_NOT_FOUND"
	ErrCodeUnknownMutation  ErrorCode = "UNKNOWN_MUTATION"
	ErrCodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
)

// Error is the typed result of a rejected or failed request. Collaborators
// derive the user-visible message from Code.
type Error struct {
	Code    ErrorCode
	Message string
	Key     Key

	// Details carries values useful for formatting (bounds, range ends).
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Key != (Key{}) {
		msg = fmt.Sprintf("%s (topic=%s)", msg, e.Key)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the category sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.category()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) category() error {
	switch e.Code {
	case ErrCodeTopicNotFound:
		return ErrNotFound
	case ErrCodeUnknownMutation:
		return ErrUnknownMutation
	case ErrCodeProcessingFailed:
		return ErrProcessingFailed
	default:
		return ErrValidation
	}
}

func newError(code ErrorCode, key Key, format string, args ...any) *Error {
	return &Error{Code: code, Key: key, Message: fmt.Sprintf(format, args...)}
}

// InvalidAmount rejects a zero amount or one that would drive a total below zero.
func InvalidAmount(key Key, amount, total int64) *Error {
	e := newError(ErrCodeInvalidAmount, key, "amount %d not applicable to total %d", amount, total)
	e.Details = map[string]string{"amount": fmt.Sprint(amount), "total": fmt.Sprint(total)}
	return e
}

// OutOfBounds rejects an amount outside the topic's per-contribution bounds.
func OutOfBounds(key Key, amount, lo, hi int64) *Error {
	e := newError(ErrCodeOutOfBounds, key, "amount %d outside [%d, %d]", amount, lo, hi)
	e.Details = map[string]string{"amount": fmt.Sprint(amount), "min": fmt.Sprint(lo), "max": fmt.Sprint(hi)}
	return e
}

// VerseOutOfRange rejects verses outside a topic's verse range.
func VerseOutOfRange(key Key, verse, start, end int) *Error {
	e := newError(ErrCodeVerseOutOfRange, key, "verse %d outside [%d, %d]", verse, start, end)
	e.Details = map[string]string{"verse": fmt.Sprint(verse), "start": fmt.Sprint(start), "end": fmt.Sprint(end)}
	return e
}

// TypeMismatch rejects a contribution whose khatm type differs from the topic's.
func TypeMismatch(key Key, got, want Type) *Error {
	return newError(ErrCodeTypeMismatch, key, "contribution of type %s to %s topic", got, want)
}

// TopicInactive rejects contributions to a completed or deactivated topic.
func TopicInactive(key Key) *Error {
	return newError(ErrCodeTopicInactive, key, "topic is not active")
}

// GroupInactive rejects contributions while the group is switched off.
func GroupInactive(key Key) *Error {
	return newError(ErrCodeGroupInactive, key, "group is not active")
}

// InvalidConfig rejects a configuration mutation with unusable values.
func InvalidConfig(key Key, format string, args ...any) *Error {
	return newError(ErrCodeInvalidConfig, key, format, args...)
}

// TopicNotFound reports a mutation addressed to a topic that has not been started.
func TopicNotFound(key Key) *Error {
	return newError(ErrCodeTopicNotFound, key, "topic does not exist")
}

// UnknownMutation reports a request type the processor cannot dispatch.
func UnknownMutation(key Key, tag string) *Error {
	return newError(ErrCodeUnknownMutation, key, "unknown mutation type %q", tag)
}

// ProcessingFailed wraps the last contention error after retries ran out.
func ProcessingFailed(key Key, attempts int, cause error) *Error {
	e := newError(ErrCodeProcessingFailed, key, "dropped after %d attempts", attempts)
	e.Err = cause
	return e
}

// CodeOf returns the ErrorCode of err, or "" when err carries none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a pre-write rejection.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsContention reports whether err is worth retrying.
func IsContention(err error) bool {
	return errors.Is(err, ErrContention)
}
