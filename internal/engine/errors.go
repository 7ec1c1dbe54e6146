package engine

import (
	"errors"
	"log/slog"

	"github.com/roach88/khatm/internal/khatm"
)

// statusOf maps a processing error onto the request's Status.
func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusApplied
	case errors.Is(err, khatm.ErrUnknownMutation):
		return StatusDropped
	case khatm.IsValidation(err), errors.Is(err, khatm.ErrNotFound):
		return StatusRejected
	default:
		return StatusFailed
	}
}

// logResult logs a processed request with enough context to find it in the
// contribution log or to resubmit it by hand.
func logResult(logger *slog.Logger, r Result) {
	attrs := []any{
		"request_id", r.RequestID,
		"seq", r.Seq,
		"type", r.Kind,
		"group_id", r.Target.GroupID,
		"topic_id", r.Target.TopicID,
	}

	switch r.Status {
	case StatusApplied:
		logger.Debug("request applied", attrs...)
	case StatusDuplicate:
		logger.Info("duplicate request ignored", attrs...)
	case StatusRejected:
		logger.Info("request rejected", append(attrs, "code", khatm.CodeOf(r.Err), "error", r.Err)...)
	case StatusDropped:
		logger.Warn("unknown request type dropped", append(attrs, "error", r.Err)...)
	default:
		logger.Error("request processing failed", append(attrs, "attempts", r.Attempts, "error", r.Err)...)
	}
}
