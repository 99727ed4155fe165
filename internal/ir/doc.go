// Package ir provides the history model shared by every other package:
// values, operations, invocations, outcomes, scenarios and execution
// results.
//
// ir imports only instr (for the thread handle operations receive).
// Everything else imports ir, so it stays the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - No float values anywhere; outcomes must compare exactly
//   - Scenarios and results are immutable once built; verifiers only read them
//   - Canonical JSON is the single source of keys and content hashes
package ir
