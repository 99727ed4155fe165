// Package instr is the instrumentation layer consumed by the managed
// scheduling strategy.
//
// Subjects under test route every shared-memory access, lock operation
// and park/unpark through the wrapped types in this package (Int64,
// Ref, Mutex, Parker). Each wrapper reports to the Scheduler carried by
// the *Thread handle passed into the operation, before the access takes
// effect (or after, for releases and unparks).
//
// There is no global scheduler holder. The engine creates one Thread per
// logical worker at run start and passes it explicitly through every
// operation call. A Thread with a nil Scheduler makes every wrapper a
// plain concurrent primitive, which is how subjects run under the stress
// strategy and during sequential reference replay.
//
// instr imports nothing internal; ir and engine build on it.
package instr
