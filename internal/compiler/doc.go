// Package compiler turns CUE rule-set declarations into ir.RuleSetSpec
// values and validates them.
//
// Every declaration is unified with the #RuleSet schema before it is read,
// so typos in field names, wrong types and missing required fields are CUE
// errors carrying file positions. A "both" rule expands into one
// to_structured and one to_legacy RuleSpec.
package compiler
