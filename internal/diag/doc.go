// Package diag holds the per-record, non-fatal diagnostics a conversion
// produces, and the sinks that collect them across conversions.
//
// Only rule-set conflicts are fatal, and those surface from the registry at
// build time. Everything reported here degrades to best-effort output.
package diag
