package harness

// TraceEvent is the outcome of one step.
type TraceEvent struct {
	Step   int    `json:"step"`
	Do     string `json:"do"`
	Task   string `json:"task,omitempty"`
	Object string `json:"object,omitempty"`

	// Status is a status name, an errno name or BLOCKED.
	Status string `json:"status"`

	// Values holds what the directive returned or the check observed,
	// e.g. "old" for set_priority or "data" and "priority" for
	// mq_receive.
	Values map[string]any `json:"values,omitempty"`
}

// TaskState is a task at the end of a run.
type TaskState struct {
	Current int64 `json:"current"`
	Real    int64 `json:"real"`
	Blocked bool  `json:"blocked"`
}

// ObjectState is a semaphore at the end of a run. Deleted objects are
// left out.
type ObjectState struct {
	Kind    string `json:"kind"`
	Count   int64  `json:"count"`
	Waiters int64  `json:"waiters"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Completions lists tasks in the order their directives returned.
	Completions []string `json:"completions"`

	Tasks   map[string]TaskState   `json:"tasks"`
	Objects map[string]ObjectState `json:"objects"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Tasks:   make(map[string]TaskState),
		Objects: make(map[string]ObjectState),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
