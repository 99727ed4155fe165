package demo

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/testutil"
	"github.com/roach88/interleave/internal/verifier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// quick returns options for a short deterministic managed check.
func quick(opts ...harness.Option) []harness.Option {
	base := []harness.Option{
		harness.WithLogger(testutil.DiscardLogger()),
		harness.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("demo-run")),
		harness.WithStrategy(harness.StrategyManaged),
		harness.WithIterations(10),
		harness.WithInvocationsPerIteration(20),
		harness.WithActors(3, 2, 2),
		harness.WithSeed(3),
	}
	return append(base, opts...)
}

// TestEntries_CheckAsDocumented tests that every correct demo passes its
// check and every broken one fails it.
func TestEntries_CheckAsDocumented(t *testing.T) {
	for _, e := range Entries() {
		t.Run(e.Name, func(t *testing.T) {
			opts := append(quick(), e.Options...)
			// entries may pick a strategy; the test stays managed
			opts = append(opts, harness.WithStrategy(harness.StrategyManaged))

			rep, err := harness.Check(context.Background(), e.Subject(), opts...)
			require.NotNil(t, rep)
			if e.Broken {
				require.True(t, harness.IsVerificationError(err), "want a violation, got %v", err)
				assert.False(t, rep.Passed())
				return
			}
			require.NoError(t, err)
			assert.True(t, rep.Passed())
			assert.Equal(t, 10, rep.Iterations)
		})
	}
}

// TestRelaxedSubjects_FailStricterConditions tests that each relaxed demo
// is caught by the exact condition it relaxes.
func TestRelaxedSubjects_FailStricterConditions(t *testing.T) {
	tests := []struct {
		name    string
		subject *harness.Subject
		opts    []harness.Option
	}{
		{
			name:    "stuttering counter is not linearizable",
			subject: StutteringCounterSubject(StutterRun),
			opts:    []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
		},
		{
			name:    "stuttering counter exceeds a zero factor",
			subject: StutteringCounterSubject(StutterRun),
			opts: []harness.Option{
				harness.WithVerifier(verifier.KindQuantitativeRelaxation),
				harness.WithRelaxation(0, verifier.PhiInterval),
			},
		},
		{
			name:    "k-stack pops below the top",
			subject: KRelaxedStack(StackK),
			opts: []harness.Option{
				harness.WithVerifier(verifier.KindQuantitativeRelaxation),
				harness.WithRelaxation(0, verifier.MaxCost),
			},
		},
		{
			name:    "k-stack is not linearizable",
			subject: KRelaxedStack(StackK),
			opts:    []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
		},
		{
			name:    "batched counter is not linearizable",
			subject: BatchedCounterSubject(BatchK),
			opts:    []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
		},
		{
			name:    "shuffle queue is not linearizable",
			subject: SerializableQueue(),
			opts:    []harness.Option{harness.WithVerifier(verifier.KindLinearizability)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := quick(append([]harness.Option{harness.WithIterations(20)}, tt.opts...)...)
			_, err := harness.Check(context.Background(), tt.subject, opts...)
			require.True(t, harness.IsVerificationError(err), "want a violation, got %v", err)
		})
	}
}

// TestCorrectSubjects_PassUnderStress tests correct subjects with real
// goroutines.
func TestCorrectSubjects_PassUnderStress(t *testing.T) {
	for _, subject := range []*harness.Subject{AtomicCounter(), MutexMap(), Treiber(), HandOffSlot()} {
		t.Run(subject.Name, func(t *testing.T) {
			rep, err := harness.Check(context.Background(), subject, quick(
				harness.WithStrategy(harness.StrategyStress),
				harness.WithStressCeiling(50),
				harness.WithIterations(5),
			)...)
			require.NoError(t, err)
			assert.Zero(t, rep.Faults)
		})
	}
}

func TestLookup(t *testing.T) {
	e, err := Lookup("treiber-stack")
	require.NoError(t, err)
	assert.Equal(t, "treiber-stack", e.Subject().Name)

	_, err = Lookup("skip-list")
	require.ErrorIs(t, err, ErrUnknownSubject)
	assert.Contains(t, err.Error(), `unknown subject "skip-list"`)
	assert.Contains(t, err.Error(), "atomic-counter")

	s, err := Resolve("mpsc-queue")
	require.NoError(t, err)
	assert.Equal(t, []string{"consumer"}, s.NonParallelGroups)
}

func TestEntries_NamesMatchSubjects(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range Entries() {
		assert.False(t, seen[e.Name], "duplicate %s", e.Name)
		seen[e.Name] = true
		assert.Equal(t, e.Name, e.Subject().Name)
		assert.NotEmpty(t, e.Description)
	}
	assert.Len(t, seen, 10)
}

func TestBatchedCounter_PublishesAfterK(t *testing.T) {
	c := NewBatchedCounter(2)().(*BatchedCounter)
	w := instr.NewThread(1, nil)

	c.Incr(w)
	assert.Equal(t, int64(0), c.Get(w), "age 1")
	assert.Equal(t, int64(1), c.Get(w), "age 2 publishes")

	c.Incr(w)
	assert.Equal(t, int64(2), c.Get(instr.Sequential()), "coordinator drains")
}

func TestKStack_PopsNearTheTop(t *testing.T) {
	s := NewKStack(2)().(*KStack)
	seq := instr.Sequential()
	exact := []int64{}
	for v := int64(1); v <= 5; v++ {
		s.Push(seq, v)
		exact = append(exact, v)
	}
	for len(exact) > 0 {
		v, err := s.Pop(seq)
		require.NoError(t, err)
		i := slices.Index(exact, v)
		require.GreaterOrEqual(t, i, len(exact)-2, "popped %d from %v", v, exact)
		exact = slices.Delete(exact, i, i+1)
	}
	_, err := s.Pop(seq)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMPSCQueue_Close(t *testing.T) {
	q := NewMPSCQueue().(*MPSCQueue)
	seq := instr.Sequential()

	assert.True(t, q.Offer(seq, 1))
	q.Close(seq)
	assert.False(t, q.Offer(seq, 2))
	assert.Equal(t, "closed:1 ", q.StateKey())

	v, ok := q.Poll(seq)
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	_, ok = q.Poll(seq)
	assert.False(t, ok)
}

func TestHandOff_PutTake(t *testing.T) {
	h := NewHandOff().(*HandOff)
	seq := instr.Sequential()

	assert.True(t, h.Put(seq, 4))
	assert.False(t, h.Put(seq, 5))
	v, ok := h.Take(seq)
	require.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok = h.Take(seq)
	assert.False(t, ok, "times out on an empty slot")
}
