package harness

// Trace event types.
const (
	EventRequest = "request"
	EventResult  = "result"
)

// TraceEvent is a submitted request or the processor's result for it.
type TraceEvent struct {
	Type      string         `json:"type"` // "request" or "result"
	Kind      string         `json:"kind,omitempty"`
	Target    string         `json:"target,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Status    string         `json:"status,omitempty"`
	Code      string         `json:"code,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Seq       int64          `json:"seq"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every request and result in processing order, setup
	// included.
	Trace []TraceEvent `json:"trace"`

	// Errors is empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRequestTrace adds a submitted request to the trace.
func (r *Result) AddRequestTrace(kind, target, requestID string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventRequest,
		Kind:      kind,
		Target:    target,
		RequestID: requestID,
		Args:      args,
		Seq:       seq,
	})
}

// AddResultTrace adds a processed result to the trace.
func (r *Result) AddResultTrace(kind, status, code string, result map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventResult,
		Kind:   kind,
		Status: status,
		Code:   code,
		Result: result,
		Seq:    seq,
	})
}
