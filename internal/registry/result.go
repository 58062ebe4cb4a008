package registry

import "github.com/roach88/marcbridge/internal/ir"

// Outcome is what a forward handler asks the dispatcher to do.
type Outcome int

const (
	// OutcomeIgnore leaves the target key untouched.
	OutcomeIgnore Outcome = iota
	// OutcomeEmit accumulates values under the rule's target key.
	OutcomeEmit
	// OutcomeRedirect accumulates a value under another key.
	OutcomeRedirect
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnore:
		return "ignore"
	case OutcomeEmit:
		return "emit"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Result is the outcome of one forward handler call.
type Result struct {
	Outcome Outcome
	// Key is the redirect target. Empty for Emit and Ignore.
	Key string
	// Values are accumulated one by one, in order.
	Values []ir.Value
	// Then are further results of the same call, applied after this one.
	Then []Result
}

// And returns r followed by next, so one occurrence can feed several keys.
// An Ignore on either side drops out.
func (r Result) And(next Result) Result {
	if r.isEmpty() {
		return next
	}
	if next.isEmpty() {
		return r
	}
	r.Then = append(append([]Result(nil), r.Then...), next)
	return r
}

func (r Result) isEmpty() bool {
	return r.Outcome == OutcomeIgnore && len(r.Then) == 0
}

// Emit accumulates v under the rule's target key. A nil or Null value is
// an Ignore: the key receives nothing, not even an empty value.
func Emit(v ir.Value) Result {
	if isAbsent(v) {
		return Ignore()
	}
	return Result{Outcome: OutcomeEmit, Values: []ir.Value{v}}
}

// EmitEach accumulates every non-nil value separately, as if the handler
// had been called once per value. With nothing left it is an Ignore.
func EmitEach(vs ...ir.Value) Result {
	var kept []ir.Value
	for _, v := range vs {
		if !isAbsent(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Ignore()
	}
	return Result{Outcome: OutcomeEmit, Values: kept}
}

// Redirect accumulates v under key instead of the rule's target key.
func Redirect(key string, v ir.Value) Result {
	if isAbsent(v) || key == "" {
		return Ignore()
	}
	return Result{Outcome: OutcomeRedirect, Key: key, Values: []ir.Value{v}}
}

// Ignore leaves the output untouched.
func Ignore() Result {
	return Result{Outcome: OutcomeIgnore}
}

func isAbsent(v ir.Value) bool {
	switch v.(type) {
	case nil, ir.Null:
		return true
	}
	return false
}
