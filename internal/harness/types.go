package harness

import (
	"github.com/roach88/pagetree/internal/dirty"
	"github.com/roach88/pagetree/internal/ir"
)

// Outcome of a successful step.
const OutcomeOK = "OK"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	ID      string `json:"id,omitempty"`
	Outcome string `json:"outcome"` // OutcomeOK or an error code
	Result  any    `json:"result,omitempty"`
	Seq     int64  `json:"seq"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Rows is the final tree, flattened and sorted.
	Rows []ir.Row `json:"rows"`

	// Dirty is the final dirty set.
	Dirty dirty.Set `json:"dirty"`

	// Revision is the stored revision the session ended on.
	Revision int64 `json:"revision"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
