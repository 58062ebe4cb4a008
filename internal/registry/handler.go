package registry

import (
	"github.com/roach88/marcbridge/internal/ir"
	"github.com/roach88/marcbridge/internal/refs"
)

// Context is the view of the running conversion a handler receives.
//
// Handlers read already-accumulated keys through Lookup but never write to
// the output directly; writes go through the returned Result (forward) or
// the returned fields (reverse).
type Context interface {
	// Model is the domain model being converted.
	Model() string
	// Direction is the conversion direction.
	Direction() ir.Direction
	// Lookup returns an already-accumulated output value. For reverse
	// conversions it reads the input record instead.
	Lookup(key string) (ir.Value, bool)
	// Refs is the reference resolver for this conversion.
	Refs() *refs.Resolver
	// Malformed records a MalformedValueWarning against the current field.
	Malformed(key, message string)
}

// ForwardFunc converts one legacy field occurrence.
type ForwardFunc func(ctx Context, r *Rule, f ir.Field) Result

// ReverseFunc converts one structured value (one element when the rule is
// repeatable and the value a list) into legacy fields. Returning no fields
// is the reverse Ignore.
type ReverseFunc func(ctx Context, r *Rule, v ir.Value) []ir.Field

// StructuredFinalizer runs once after forward dispatch with read/write
// access to the whole output record.
type StructuredFinalizer func(ctx Context, out ir.Object)

// LegacyFinalizer runs once after reverse dispatch with read/write access
// to the whole output record.
type LegacyFinalizer func(ctx Context, out *ir.LegacyRecord)

// Finalizer is a named post-dispatch step. Exactly one of Structured or
// Legacy is set, matching Direction.
type Finalizer struct {
	Name       string
	Direction  ir.Direction
	Structured StructuredFinalizer
	Legacy     LegacyFinalizer
}
