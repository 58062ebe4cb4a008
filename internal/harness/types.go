package harness

import (
	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Direction is the direction the input was converted in.
	Direction ir.Direction `json:"direction"`

	// Output is the converted record.
	Output ir.Record `json:"output"`

	// Warnings are the warnings the conversion raised, in order.
	Warnings diag.Warnings `json:"warnings"`

	// Back is the output converted back again. Set only when a round_trip
	// assertion ran.
	Back ir.Record `json:"back,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Warnings: diag.Warnings{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recordValue returns the Value form of either record shape.
func recordValue(rec ir.Record) ir.Value {
	switch r := rec.(type) {
	case ir.LegacyRecord:
		return r.ToValue()
	case ir.Object:
		return r
	default:
		return ir.Null{}
	}
}
