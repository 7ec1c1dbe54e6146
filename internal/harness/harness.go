package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/khatm/internal/engine"
	"github.com/roach88/khatm/internal/khatm"
	"github.com/roach88/khatm/internal/mutation"
	"github.com/roach88/khatm/internal/preset"
	"github.com/roach88/khatm/internal/store"
	"github.com/roach88/khatm/internal/testutil"
	"github.com/roach88/khatm/internal/verse"
)

// Harness drives one scenario through a real processor.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory.
// Request IDs ("req-0001", ...) and sequence numbers are deterministic, so
// traces are stable across runs.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "khatm-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "khatm.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	presets, err := preset.Load(scenario.Presets)
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}
	verses, err := verse.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load verse index: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(st, verses,
		engine.WithPresets(presets),
		engine.WithLogger(logger),
		engine.WithIDGenerator(engine.NewSequentialGenerator("req")),
		engine.WithSequencer(testutil.NewDeterministicClock()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- eng.Run(runCtx)
	}()
	defer func() {
		eng.Stop()
		<-done
	}()

	h := &Harness{store: st, engine: eng, logger: logger}
	result := NewResult()

	for i, step := range scenario.Setup {
		res, err := h.submit(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, err)
		}
		if res.Status != engine.StatusApplied {
			return nil, fmt.Errorf("setup step %d: %s request %s: %v", i, res.Kind, res.Status, res.Err)
		}
	}

	for i, step := range scenario.Flow {
		res, err := h.submit(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, res) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, res.Kind, msg))
			}
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// submit decodes a step, waits for its result and traces both.
func (h *Harness) submit(ctx context.Context, step Step, result *Result) (engine.Result, error) {
	args, err := normalize(step.Request)
	if err != nil {
		return engine.Result{}, err
	}
	req, err := mutation.DecodeMap(args.(map[string]any))
	if err != nil {
		return engine.Result{}, err
	}

	var ticket *engine.Ticket
	if step.RequestID != "" {
		ticket, err = h.engine.EnqueueWithID(req, step.RequestID)
	} else {
		ticket, err = h.engine.Enqueue(req)
	}
	if err != nil {
		return engine.Result{}, err
	}
	result.AddRequestTrace(string(req.Kind()), req.Target().String(), ticket.ID, args.(map[string]any), ticket.Seq)

	res, err := ticket.Wait(ctx)
	if err != nil {
		return engine.Result{}, err
	}

	body, err := resultBody(res)
	if err != nil {
		return engine.Result{}, err
	}
	result.AddResultTrace(string(res.Kind), string(res.Status), string(khatm.CodeOf(res.Err)), body, res.Seq)

	h.logger.Debug("step processed",
		"kind", res.Kind,
		"target", res.Target,
		"status", res.Status,
	)
	return res, nil
}

// resultBody is the JSON form of the snapshot, contribution and affected
// count of res, or nil when it has none.
func resultBody(res engine.Result) (map[string]any, error) {
	body := map[string]any{}
	if res.Snapshot != nil {
		body["snapshot"] = res.Snapshot
	}
	if res.Contribution != nil {
		body["contribution"] = res.Contribution
	}
	if res.Affected > 0 {
		body["affected"] = res.Affected
	}
	if len(body) == 0 {
		return nil, nil
	}
	v, err := normalize(body)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func checkExpect(want *ExpectClause, res engine.Result) []string {
	var msgs []string
	if string(res.Status) != want.Status {
		msgs = append(msgs, fmt.Sprintf("expected status %s, got %s (%v)", want.Status, res.Status, res.Err))
	}
	if want.Code != "" {
		if got := string(khatm.CodeOf(res.Err)); got != want.Code {
			msgs = append(msgs, fmt.Sprintf("expected code %s, got %q", want.Code, got))
		}
	}
	if len(want.Result) > 0 {
		actual, err := resultBody(res)
		if err != nil {
			return append(msgs, err.Error())
		}
		expected, err := normalize(want.Result)
		if err != nil {
			return append(msgs, err.Error())
		}
		if !subsetMatch(actual, expected) {
			msgs = append(msgs, fmt.Sprintf("expected result %v, got %v", expected, actual))
		}
	}
	return msgs
}

// normalize round-trips v through JSON so YAML ints and Go structs compare
// as the same float64/map shapes.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}
