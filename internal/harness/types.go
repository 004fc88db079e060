package harness

// TraceEvent is one entry in a scenario trace.
type TraceEvent struct {
	Seq       int64             `json:"seq"`
	Type      string            `json:"type"` // "event", "reply", "result", "post" or "sweep"
	Action    string            `json:"action,omitempty"`
	Args      map[string]string `json:"args,omitempty"`
	Success   *bool             `json:"success,omitempty"`
	Unhandled bool              `json:"unhandled,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Content   string            `json:"content,omitempty"`
	Private   bool              `json:"private,omitempty"`
	Buttons   []string          `json:"buttons,omitempty"`
	Closed    *int              `json:"closed,omitempty"`
}

// Trace event types.
const (
	TraceEventDispatched = "event"
	TraceReply           = "reply"
	TraceResult          = "result"
	TracePost            = "post"
	TraceSweep           = "sweep"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds events, replies and results in order.
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

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
