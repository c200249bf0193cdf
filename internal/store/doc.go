// Package store provides the SQLite trace journal of a dataspace run.
//
// The journal is an append-only diagnostic log with:
//   - Runs: one row per journaled run, with the engine and value encoding versions
//   - Trace events: actor starts and terminations, assertion transitions, messages
//
// The journal is write-only while a run is in progress. It is never read back
// to restore a dataspace; ReadTrace exists for the trace command and tests.
//
// # Critical Patterns
//
// Logical Ordering:
//   - Events are ordered by seq INTEGER, assigned in commit order per run
//   - NEVER order by wall-clock timestamps
//
// Deterministic Query Results:
//   - All queries MUST include: ORDER BY seq ASC
//   - Identical runs produce identical rows
//
// Canonical Values:
//   - Values are stored as canonical JSON (ir.MarshalCanonical)
//   - value_hash is ir.ValueHash, for grouping rows by assertion
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
