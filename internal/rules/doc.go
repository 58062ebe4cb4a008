// Package rules holds the per-model rule sets and the handlers they name.
//
// Rule sets are CUE declarations embedded from cue/*.cue. Each rule names a
// handler: either a builtin declarative handler (control, value, int, date,
// list, object, flag, ignore) parameterised by the rule's code, subfields,
// fixed subfields and reference, or a named handler written in Go for
// fields whose shape does not fit a declaration.
//
// Build validates compiled rule sets, binds every rule to its handler and
// returns an immutable registry.Registry:
//
//	specs, err := rules.Embedded()
//	reg, err := rules.Build(specs)
//	d := engine.New(reg, refs.NewResolver(baseURL))
package rules
