package harness

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/verifier"
)

// TestCheck_AtomicCounterPasses tests that a correct subject passes and
// every run is accounted for.
func TestCheck_AtomicCounterPasses(t *testing.T) {
	obs := newRecorder()
	rep, err := Check(context.Background(), atomicCounter(), small(WithObserver(obs))...)
	require.NoError(t, err)

	assert.True(t, rep.Passed())
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, "atomic-counter", rep.Subject)
	assert.Equal(t, 10, rep.Iterations)
	assert.Equal(t, 200, rep.Runs)
	assert.Equal(t, 200, rep.Verified)
	assert.Zero(t, rep.Faults)
	assert.Zero(t, rep.Inconclusive)
	assert.Equal(t, rep.Runs, int(rep.CacheHits+rep.CacheMisses))

	assert.Equal(t, 10, obs.iterations)
	assert.Equal(t, 200, obs.runs[RunCompleted])
	assert.Equal(t, 200, obs.verdicts[true])
	assert.Zero(t, obs.verdicts[false])
}

// TestCheck_StressStrategy tests the default strategy on a correct subject.
func TestCheck_StressStrategy(t *testing.T) {
	rep, err := Check(context.Background(), atomicCounter(),
		small(WithStrategy(StrategyStress), WithStressCeiling(50))...)
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Equal(t, StrategyStress, rep.Strategy)
	assert.Equal(t, 200, rep.Runs)
}

// TestCheck_RacyCounterFails tests that a lost update is reported with a
// reproducible scenario and result.
func TestCheck_RacyCounterFails(t *testing.T) {
	subject := racyCounter()
	rep, err := Check(context.Background(), subject,
		small(WithIterations(50), WithInvocationsPerIteration(100))...)
	require.Error(t, err)

	ve, ok := AsVerificationError(err)
	require.True(t, ok, "want a verification error, got %v", err)
	assert.False(t, rep.Passed())
	assert.Same(t, ve, rep.Failure)
	assert.Equal(t, "racy-counter", ve.Subject)
	assert.Equal(t, "linearizability", ve.Verifier)
	assert.Equal(t, "managed", ve.Strategy)
	assert.Equal(t, rep.Iterations, ve.Iteration)
	assert.Contains(t, ve.Error(), "racy-counter: linearizability violated at iteration")

	// the reported pair must fail on its own
	require.True(t, ve.Result.MatchesShape(ve.Scenario))
	ok, err = verifier.NewLinearizability(subject.model()).Verify(ve.Scenario, ve.Result)
	require.NoError(t, err)
	assert.False(t, ok)

	// a lost update needs two threads
	assert.GreaterOrEqual(t, ve.Scenario.Threads(), 2)
	assert.Contains(t, ve.Details(), "= Invalid execution results =")
}

// TestCheck_MinimizeDisabled tests that the generated scenario is reported
// as is.
func TestCheck_MinimizeDisabled(t *testing.T) {
	_, err := Check(context.Background(), racyCounter(),
		small(WithIterations(50), WithInvocationsPerIteration(100), WithMinimize(false))...)
	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.False(t, ve.Minimized)
	// actors 2 per thread, 1 before, 1 after
	assert.Equal(t, 6, ve.Scenario.Size())
}

// TestCheck_Deterministic tests that a managed check with a fixed seed
// finds the same failure every time.
func TestCheck_Deterministic(t *testing.T) {
	run := func() *VerificationError {
		_, err := Check(context.Background(), racyCounter(),
			small(WithIterations(50), WithInvocationsPerIteration(100))...)
		ve, ok := AsVerificationError(err)
		require.True(t, ok)
		return ve
	}
	a, b := run(), run()

	assert.Equal(t, a.Iteration, b.Iteration)
	assert.Equal(t, a.Run, b.Run)
	if diff := cmp.Diff(a.Scenario.Record(), b.Scenario.Record()); diff != "" {
		t.Errorf("scenarios differ (-first +second):\n%s", diff)
	}
	assert.Equal(t, a.Result.Key(), b.Result.Key())
}

// TestCheck_EpsilonAcceptsEverything tests that the epsilon verifier never
// fails a check.
func TestCheck_EpsilonAcceptsEverything(t *testing.T) {
	rep, err := Check(context.Background(), racyCounter(),
		small(WithVerifier(verifier.KindEpsilon))...)
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Zero(t, rep.CacheHits+rep.CacheMisses)
}

// TestCheck_RunFaultsFailTheCheck tests that panicking invocations are
// counted, end their iteration and fail the check.
func TestCheck_RunFaultsFailTheCheck(t *testing.T) {
	obs := newRecorder()
	rep, err := Check(context.Background(), explodingCounter(),
		small(WithObserver(obs), WithIterations(20))...)
	require.NoError(t, err)

	assert.False(t, rep.Passed())
	assert.Nil(t, rep.Failure)
	assert.Positive(t, rep.Faults)
	assert.Equal(t, rep.Faults, obs.runs[RunFaulted])
	// the check moves on after a fault
	assert.Equal(t, 20, rep.Iterations)
	// a fault ends its iteration after one run
	assert.Less(t, rep.Runs, 20*20)

	require.NotNil(t, rep.Fault)
	assert.Positive(t, rep.Fault.Iteration)
	assert.Positive(t, rep.Fault.Run)
	assert.True(t, engine.IsRunFault(rep.Fault))
	assert.Contains(t, rep.Reason(), "run fault at iteration")
	assert.Contains(t, rep.Reason(), "kaboom")
}

// TestCheck_AllRunsPanicking tests a subject whose only operation always
// panics.
func TestCheck_AllRunsPanicking(t *testing.T) {
	subject := NewSubject("always-exploding", newCounter).
		Operation("explode", Run(func(*instr.Thread, *counter, []ir.IRValue) (ir.IRValue, error) {
			panic("kaboom")
		})).
		MustBuild()

	rep, err := Check(context.Background(), subject, small()...)
	require.NoError(t, err)
	assert.False(t, rep.Passed())
	assert.Zero(t, rep.Verified)
	assert.Equal(t, rep.Iterations, rep.Faults)
	require.NotNil(t, rep.Fault)
	assert.Equal(t, 1, rep.Fault.Iteration)
	assert.Equal(t, 1, rep.Fault.Run)
}

// TestCheck_AllRunsInconclusive tests that a check whose every run
// deadlocks does not pass.
func TestCheck_AllRunsInconclusive(t *testing.T) {
	obs := newRecorder()
	rep, err := Check(context.Background(), stuckCounter(),
		small(WithObserver(obs), WithIterations(3), WithInvocationsPerIteration(5), WithActors(1, 0, 0))...)
	require.NoError(t, err)

	assert.False(t, rep.Passed())
	assert.Nil(t, rep.Failure)
	assert.Nil(t, rep.Fault)
	assert.Zero(t, rep.Verified)
	assert.Equal(t, 15, rep.Runs)
	assert.Equal(t, 15, rep.Inconclusive)
	assert.Equal(t, 15, obs.runs[RunInconclusive])
	assert.Contains(t, rep.Reason(), "no result was verified")
}

// TestCheck_ConfigErrors tests that invalid input is rejected before
// anything runs.
func TestCheck_ConfigErrors(t *testing.T) {
	noModel := &Subject{Name: "bare", Operations: []*ir.Operation{{Name: "op"}}}

	tests := []struct {
		name    string
		subject *Subject
		opts    []Option
		code    ConfigErrorCode
	}{
		{"nil subject", nil, nil, ErrCodeNoOperations},
		{"no operations", &Subject{Name: "empty", Factory: newCounter}, nil, ErrCodeNoOperations},
		{"no factory", noModel, nil, ErrCodeBadParam},
		{"zero iterations", atomicCounter(), []Option{WithIterations(0)}, ErrCodeBadOptions},
		{"zero threads", atomicCounter(), []Option{WithThreads(0)}, ErrCodeBadOptions},
		{"unknown strategy", atomicCounter(), []Option{WithStrategy("chaos")}, ErrCodeBadOptions},
		{"bad probability", atomicCounter(), []Option{WithSwitchProbability(1.5)}, ErrCodeBadOptions},
		{"unknown verifier", atomicCounter(), []Option{WithVerifier("sequential")}, ErrCodeBadOptions},
		{"quantitative without counter", atomicCounter(), []Option{WithVerifier(verifier.KindQuantitativeRelaxation)}, ErrCodeBadOptions},
		{"quasi factor", atomicCounter(), []Option{WithVerifier(verifier.KindQuasiLinearizability)}, ErrCodeBadOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := Check(context.Background(), tt.subject, append([]Option{WithLogger(discard())}, tt.opts...)...)
			require.Error(t, err)
			assert.Nil(t, rep)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

// TestCheck_CancelledContext tests that a cancelled check stops before the
// next iteration.
func TestCheck_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := Check(ctx, atomicCounter(), small()...)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Zero(t, rep.Iterations)
	assert.Nil(t, rep.Failure)
	// nothing was verified
	assert.False(t, rep.Passed())
}

// TestShrinks tests the single-removal candidates of a scenario.
func TestShrinks(t *testing.T) {
	s := atomicCounter()
	sc := &ir.Scenario{
		Initial: []ir.Invocation{call(s, "incr")},
		Parallel: [][]ir.Invocation{
			{call(s, "incr"), call(s, "get")},
			{call(s, "decr")},
		},
		Final: []ir.Invocation{call(s, "get")},
	}

	got := shrinks(sc)
	require.Len(t, got, 5)
	for _, c := range got {
		assert.Equal(t, sc.Size()-1, c.Size())
	}
	// removing the only invocation of thread 2 drops the thread
	assert.Equal(t, 1, got[2].Threads())
	assert.Equal(t, "incr()", got[2].Parallel[0][0].String())
	// the original is untouched
	assert.Equal(t, 5, sc.Size())
	assert.Len(t, sc.Parallel[0], 2)

	single := &ir.Scenario{Parallel: [][]ir.Invocation{{call(s, "get")}}}
	got = shrinks(single)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Threads())
	assert.Zero(t, got[0].Size())
}
