package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/khatm/internal/engine"
)

// Scenario is a sequence of mutation requests with expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Presets is an optional CUE preset override file, relative to the
	// scenario file.
	Presets string `yaml:"presets,omitempty"`

	// Setup requests establish initial state. Each must be applied.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow requests are checked against their expect clauses.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step submits one request.
type Step struct {
	// Request is the flat wire object, e.g.
	// {type: contribution, group_id: 1, topic_id: 2, user_id: 3, amount: 10}.
	Request map[string]any `yaml:"request"`

	// RequestID fixes the request ID; repeat it to test deduplication.
	RequestID string `yaml:"request_id,omitempty"`

	// Expect is nil for no validation.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Status is applied, duplicate, rejected, dropped or failed.
	Status string `yaml:"status"`

	// Code is the expected error code, e.g. OUT_OF_BOUNDS.
	Code string `yaml:"code,omitempty"`

	// Result is a subset match against the JSON form of the result, e.g.
	// {snapshot: {current_total: 10}, contribution: {completed: true}}.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count,
	// final_state or ranking.
	Type string `yaml:"type"`

	// Kind is the request kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Args is a subset match on request fields (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// Status narrows trace_count to results with this status.
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected request order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Table, Where and Expect query one row of a store table (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// GroupID, TopicID and Ranking give the expected top contributors of a
	// topic, in order (ranking).
	GroupID int64     `yaml:"group_id,omitempty"`
	TopicID int64     `yaml:"topic_id,omitempty"`
	Ranking []RankRow `yaml:"ranking,omitempty"`
}

// RankRow is one expected ranking entry.
type RankRow struct {
	UserID int64 `yaml:"user_id"`
	Total  int64 `yaml:"total"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRanking       = "ranking"
)

var validStatuses = map[string]bool{
	string(engine.StatusApplied):   true,
	string(engine.StatusDuplicate): true,
	string(engine.StatusRejected):  true,
	string(engine.StatusDropped):   true,
	string(engine.StatusFailed):    true,
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected. A relative Presets path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Presets != "" && !filepath.IsAbs(scenario.Presets) {
		scenario.Presets = filepath.Join(filepath.Dir(path), scenario.Presets)
	}
	if scenario.Presets != "" {
		if _, err := os.Stat(scenario.Presets); err != nil {
			return nil, fmt.Errorf("invalid scenario: presets file: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && !validStatuses[step.Expect.Status] {
			return fmt.Errorf("flow[%d].expect: unknown status %q", i, step.Expect.Status)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	if step.Request == nil {
		return fmt.Errorf("request is required")
	}
	if t, _ := step.Request["type"].(string); t == "" {
		return fmt.Errorf("request.type is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRanking:
		if a.GroupID == 0 && a.TopicID == 0 {
			return fmt.Errorf("assertions[%d]: group_id or topic_id is required for ranking", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
