package harness

// Trace event types.
const (
	EventChanged   = "changed"
	EventUnchanged = "unchanged"
	EventSkipped   = "skipped"
	EventReset     = "reset"
	EventMigrate   = "migrate"
	EventError     = "error"
)

// TraceEvent is one observable step of a scenario.
type TraceEvent struct {
	Run     int    `json:"run"`
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Applied int    `json:"applied,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every run expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
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

// AddTrace appends an event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

// Changed returns the ids traced as changed, in order.
func (r *Result) Changed(run int) []string {
	ids := []string{}
	for _, ev := range r.Trace {
		if ev.Type == EventChanged && (run == 0 || ev.Run == run) {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}
