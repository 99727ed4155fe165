// Package harness drives concurrency checks of a subject.
//
// A check generates randomized scenarios from the subject's operation
// table, runs every scenario many times against fresh instances under an
// execution strategy, and asks a verifier whether each result can be
// explained by some sequential order of the invocations.
//
// # Subjects
//
// Subjects are declared explicitly with a builder; nothing is discovered
// at run time:
//
//	counter := harness.NewSubject("counter", func() any { return &Counter{} }).
//		Operation("incr", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
//			return ir.IRInt(c.Incr(t)), nil
//		})).
//		Operation("get", harness.Run(func(t *instr.Thread, c *Counter, _ []ir.IRValue) (ir.IRValue, error) {
//			return ir.IRInt(c.Get(t)), nil
//		})).
//		MustBuild()
//
// Operation options declare argument generators (Params, Param), handled
// errors (Handles), run-once operations, non-parallel groups and the
// markers used by the relaxed verifiers.
//
// # Running a Check
//
//	report, err := harness.Check(ctx, counter,
//		harness.WithStrategy(harness.StrategyManaged),
//		harness.WithIterations(100),
//	)
//	if ve, ok := harness.AsVerificationError(err); ok {
//		fmt.Println(ve.Details())
//	}
//
// Errors are classified:
//   - ConfigError: the subject or options are invalid; nothing ran
//   - VerificationError: a result could not be explained; carries the
//     (minimized) scenario and result
//   - verifier.ModelError: the reference model itself failed
//
// Run faults and inconclusive runs (timeouts, deadlocks, exhausted call
// budgets) never fail a check. They are counted in the Report.
//
// # Recorded Histories
//
// A failing scenario and its outcomes can be saved as YAML and verified
// again later without running the subject:
//
//	subject: counter
//	verifier: linearizability
//	parallel:
//	  - - op: incr
//	      result: 1
//	  - - op: incr
//	      result: 1
//
// Steps carry a result, an error name, or neither for operations that
// return nothing. See LoadHistory and VerifyHistory.
//
// # Determinism
//
// Scenario generation, stress waits and managed scheduling decisions all
// derive from Options.Seed. Under the managed strategy a check with a fixed
// seed and a fixed run ID generator produces the same report every time.
package harness
