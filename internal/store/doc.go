// Package store provides SQLite-backed durable storage for conversions.
//
// Every stored conversion keeps its canonical input and output, their
// content hashes, and the fingerprint of the rule sets that produced it,
// together with the warnings the conversion raised. That is enough to
// replay any conversion later and tell a determinism failure (same rules,
// different output) from rule drift (different rules).
//
// The log is append-only:
//   - Writes use ON CONFLICT DO NOTHING, so re-storing a conversion id is a
//     no-op.
//   - All queries order by seq ASC, id COLLATE BINARY ASC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Records are stored as RFC 8785 canonical JSON (ir.MarshalRecord), and
// hashes come from ir.RecordHash.
package store
