// Package verifier decides whether an ExecutionResult is explainable by a
// sequential reference model.
//
// Every verifier is a policy layer over one search primitive: a
// depth-first search over frontier states. A frontier state records how
// far each part of the scenario has been replayed and which reference
// state that replay produced. A transition replays the next invocation of
// some thread against the reference model and keeps the branch only when
// the produced outcome matches the recorded one.
//
// Policy layers:
//   - Linearizability: per-thread order is the only constraint.
//   - Serializability: every invocation becomes its own thread.
//   - Quiescent consistency: marked invocations leave their thread.
//   - Quantitative relaxation: relaxed operations step through a
//     CostCounter, bounded by a path-cost function and a factor.
//   - Quasi-linearizability: relaxed invocations may take effect a bounded
//     number of positions away from their thread position.
//   - Epsilon: accepts everything.
//
// Reference states are deduplicated by key (see StateKeyer) and recreated
// by replaying their invocation path against a fresh model instance, so
// models never need to be copyable.
package verifier
