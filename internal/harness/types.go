package harness

import "github.com/roach88/dataspace/internal/testutil"

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions match.
	Pass bool `json:"pass"`

	// Trace is the journaled trace, one rendered event per line.
	Trace []string `json:"trace"`

	// Events are the recorded events behind Trace.
	Events []testutil.Event `json:"-"`

	// Final lists the assertions left in the dataspace, in value order,
	// as canonical JSON.
	Final []string `json:"final"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []string{},
		Final:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
