package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSalavat(group, topic int) Step {
	return Step{Request: map[string]any{"type": "start_khatm_salavat", "group_id": group, "topic_id": topic}}
}

func contribute(group, topic, user, amount int) map[string]any {
	return map[string]any{
		"type": "contribution", "group_id": group, "topic_id": topic,
		"user_id": user, "amount": amount, "khatm_type": "salavat",
	}
}

func TestRun_AppliesThroughProcessor(t *testing.T) {
	scenario := &Scenario{
		Name:        "through_processor",
		Description: "Results come from the processor, not from expect clauses",
		Setup:       []Step{startSalavat(1, 1)},
		Flow: []Step{
			{Request: contribute(1, 1, 2, 10), Expect: &ExpectClause{Status: "applied"}},
			// Wrong on purpose: the harness must report it.
			{Request: contribute(1, 1, 2, 5000), Expect: &ExpectClause{Status: "applied"}},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Kind: "contribution", Count: 2}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "flow[1] contribution: expected status applied, got rejected")

	require.Len(t, result.Trace, 6)
	assert.Equal(t, EventRequest, result.Trace[0].Type)
	assert.Equal(t, "req-0001", result.Trace[0].RequestID)
	assert.Equal(t, EventResult, result.Trace[5].Type)
	assert.Equal(t, "OUT_OF_BOUNDS", result.Trace[5].Code)
	assert.Equal(t, int64(3), result.Trace[5].Seq)
}

func TestRun_ExpectCodeAndResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "expect",
		Description: "Code and result subset checks",
		Setup:       []Step{startSalavat(1, 1)},
		Flow: []Step{
			{
				Request: contribute(1, 1, 2, 10),
				Expect: &ExpectClause{
					Status: "applied",
					Result: map[string]any{"snapshot": map[string]any{"current_total": 11}},
				},
			},
			{
				Request: contribute(1, 2, 2, 10),
				Expect:  &ExpectClause{Status: "rejected", Code: "OUT_OF_BOUNDS"},
			},
		},
		Assertions: []Assertion{{Type: AssertTraceCount, Kind: "contribution", Count: 2}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected result")
	assert.Contains(t, result.Errors[1], `expected code OUT_OF_BOUNDS, got "TOPIC_NOT_FOUND"`)
}

func TestRun_DuplicateRequestID(t *testing.T) {
	step := Step{Request: contribute(1, 1, 2, 10), RequestID: "msg-1"}
	dup := step
	dup.Expect = &ExpectClause{Status: "duplicate"}

	scenario := &Scenario{
		Name:        "dedup",
		Description: "A resent request ID is counted once",
		Setup:       []Step{startSalavat(1, 1)},
		Flow:        []Step{step, dup},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "topics", Where: map[string]any{"group_id": 1, "topic_id": 1}, Expect: map[string]any{"current_total": 10}},
			{Type: AssertRanking, GroupID: 1, TopicID: 1, Ranking: []RankRow{{UserID: 2, Total: 10}}},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "msg-1", result.Trace[4].RequestID)
}

func TestRun_SetupMustApply(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup rejections abort the run",
		Setup:       []Step{{Request: contribute(1, 1, 2, 10)}},
		Flow:        []Step{{Request: contribute(1, 1, 2, 10)}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Kind: "contribution", Count: 2}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0")
}

func TestRun_UndecodableRequest(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_request",
		Description: "A request that cannot be decoded is an execution error",
		Flow:        []Step{{Request: map[string]any{"type": "contribution", "amount": "ten"}}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Kind: "contribution", Count: 1}},
	}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow step 0")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := &Scenario{
		Name:        "determinism",
		Description: "Two runs give identical traces",
		Setup:       []Step{startSalavat(1, 1)},
		Flow:        []Step{{Request: contribute(1, 1, 2, 10)}, {Request: contribute(1, 1, 3, 20)}},
		Assertions:  []Assertion{{Type: AssertTraceOrder, Kinds: []string{"start_khatm_salavat", "contribution"}}},
	}

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
}
