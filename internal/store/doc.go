// Package store provides SQLite-backed durable storage for check results.
//
// The archive keeps:
//   - Checks: one row per check run, keyed by its UUIDv7 run ID, with the
//     counters of the report, the options it ran with and the host
//   - Failures: the failing scenario and result of a failed check, stored
//     as JSON with operations referenced by name
//
// # Critical Patterns
//
// Idempotent writes:
//   - INSERT ... ON CONFLICT DO NOTHING; saving a report twice is a no-op
//
// Deterministic ordering:
//   - Run IDs are UUIDv7, so ORDER BY id COLLATE BINARY is creation order
//   - Settings and host are stored as RFC 8785 canonical JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
