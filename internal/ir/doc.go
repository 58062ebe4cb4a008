// Package ir provides the canonical intermediate representation types for
// marcbridge.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps IR the foundational
// layer with no circular dependencies.
//
// Two record shapes live here:
//   - LegacyRecord: an ordered sequence of tag/subfield Field occurrences
//   - Object: the nested structured record built from sealed Value variants
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Object iteration is always via SortedKeys() for determinism
//   - All JSON tags use snake_case
package ir
