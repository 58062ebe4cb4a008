// Package registry holds the mapping rules of every domain model, per
// direction, and answers which rules may handle a given legacy tag key or
// structured key.
//
// A Registry is assembled once through a Builder and is immutable after
// Build. It may be shared by any number of concurrent conversions without
// locking.
//
// Precedence between candidate rules:
//
//  1. Longer literal pattern prefix (more specific) first.
//  2. Among equally specific rules, those with a discriminator (When) first.
//  3. Registration order.
//
// Register refuses a rule that could match the same tag as an existing rule
// of equal specificity targeting a different key, unless the two rules carry
// mutually exclusive discriminators. Such ambiguity is an AmbiguousRuleError
// at build time and is never resolved while converting records.
package registry
