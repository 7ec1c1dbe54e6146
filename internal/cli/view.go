package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/store"
	"github.com/roach88/khatm/internal/verse"
)

// resultView is the printed form of an engine.Result.
type resultView struct {
	engine.Result
	Error *CLIError `json:"error,omitempty"`
}

func newResultView(r engine.Result) resultView {
	v := resultView{Result: r}
	if r.Err != nil {
		v.Error = &CLIError{Code: string(khatm.CodeOf(r.Err)), Message: r.Err.Error()}
		if v.Error.Code == "" {
			v.Error.Code = "E_INTERNAL"
		}
	}
	return v
}

func (v resultView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s #%d %s %s: %s", v.RequestID, v.Seq, v.Kind, v.Target, v.Status)
	if v.Error != nil {
		fmt.Fprintf(w, " [%s] %s", v.Error.Code, v.Error.Message)
	}
	if c := v.Contribution; c != nil {
		var flags []string
		if c.Completed {
			flags = append(flags, fmt.Sprintf("completed x%d", c.CompletionsAdded))
		}
		if c.Wrapped {
			flags = append(flags, "wrapped")
		}
		if c.Deactivated {
			flags = append(flags, "deactivated")
		}
		if c.Overflow > 0 {
			flags = append(flags, fmt.Sprintf("overflow %d", c.Overflow))
		}
		if len(flags) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(flags, ", "))
		}
	}
	if s := v.Snapshot; s != nil {
		fmt.Fprintf(w, " total=%d completions=%d", s.CurrentTotal, s.CompletionCount)
	}
	if v.Affected > 0 {
		fmt.Fprintf(w, " affected=%d", v.Affected)
	}
	fmt.Fprintln(w)
	if v.Contribution != nil && v.Contribution.Message != "" {
		fmt.Fprintf(w, "  %s\n", v.Contribution.Message)
	}
}

type snapshotView struct {
	khatm.Snapshot
}

func (v snapshotView) renderText(w io.Writer) {
	s := v.Snapshot
	state := "active"
	if !s.IsActive {
		state = "inactive"
	}
	fmt.Fprintf(w, "Topic %s", s.Key)
	if s.Name != "" {
		fmt.Fprintf(w, " %q", s.Name)
	}
	fmt.Fprintf(w, " (%s, %s)\n", s.Type, state)
	fmt.Fprintf(w, "  total:       %d\n", s.CurrentTotal)
	fmt.Fprintf(w, "  completions: %d\n", s.CompletionCount)
	if s.StopNumber > 0 {
		fmt.Fprintf(w, "  stop:        %d\n", s.StopNumber)
	}
	if s.PeriodNumber > 0 {
		fmt.Fprintf(w, "  period:      %d\n", s.PeriodNumber)
	}
	if s.Type == khatm.TypeQuran {
		fmt.Fprintf(w, "  range:       %d-%d\n", s.RangeStart, s.RangeEnd)
		fmt.Fprintf(w, "  next verse:  %d\n", s.CurrentVerse)
	}
}

type rankingView struct {
	Key     khatm.Key         `json:"target"`
	Entries []store.RankEntry `json:"ranking"`
}

func (v rankingView) renderText(w io.Writer) {
	if len(v.Entries) == 0 {
		fmt.Fprintf(w, "No contributions in topic %s\n", v.Key)
		return
	}
	for i, e := range v.Entries {
		fmt.Fprintf(w, "%3d. user %d: %d\n", i+1, e.UserID, e.Total)
	}
}

type verseView struct {
	verse.Verse
	Ref string `json:"position"`
}

func (v verseView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%d (%s)", v.Ordinal, v.Ref)
	if v.Bismillah {
		fmt.Fprint(w, " bismillah")
	}
	fmt.Fprintln(w)
	if text := v.Display(); text != "" {
		fmt.Fprintln(w, text)
	}
}
