// Package engine runs scenarios against fresh subject instances.
//
// The engine is the execution half of a check: it turns a Scenario into an
// ExecutionResult. The verifier package decides whether that result is
// acceptable.
//
// ARCHITECTURE:
//
// Run Structure:
// Every run creates a new subject from the factory, executes the initial
// part sequentially, runs the parallel part through a Strategy, and then
// executes the final part sequentially. Sequential parts use logical
// thread 0; parallel workers are numbered 1..T.
//
// Strategies:
//   - Stress: real goroutines released together behind a start barrier,
//     with seeded busy-waits that grow over the runs of one scenario.
//   - Managed: cooperative scheduling through instr.Scheduler callbacks.
//     Exactly one worker runs at a time; a Policy picks who continues at
//     every shared access, lock, park or unpark.
//
// Run Errors:
// A run either yields a complete result or a RunError. RUN_FAULT blames
// the subject (undeclared error or panic). TIMEOUT, CALL_BUDGET and
// DEADLOCK are inconclusive and the run is discarded.
//
// CRITICAL PATTERNS:
//
// Logical Clock
// Runs and scheduling decisions are stamped with a monotonic Clock.
// Wall-clock time only bounds runs, it never orders anything.
//
// Seeded Randomness
// Stress waits and random policies derive from an explicit seed and the
// Attempt index, so a failing run can be reproduced with the same seed.
package engine
