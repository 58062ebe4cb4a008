// Package engine implements the Dispatcher, which drives one record's
// end-to-end conversion between the legacy tag/subfield shape and the
// structured shape.
//
// PIPELINE:
//
//	Dispatch(rules, source order) -> Finalize -> Postprocess
//
// Dispatch visits legacy field occurrences in source order (structured keys
// in sorted order for the reverse direction), resolves each to a rule via
// the registry, invokes the rule's handler and accumulates the outcome into
// the output record. Finalizers then run once, in registration order, with
// read/write access to the whole output. Postprocess strips empty values
// and optionally deduplicates lists, as configured per model.
//
// Nothing persists between conversions. A Dispatcher holds only the
// immutable registry and resolver plus an optional warning sink, so one
// Dispatcher may serve any number of goroutines.
//
// DETERMINISM:
//
// Identical input and identical registry yield structurally identical
// output. Rule precedence is decided by the registry; no map iteration
// order leaks into output or warning order.
package engine
