package harness

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errEmpty = errors.New("empty")

// counter is a subject with an atomic and a racy increment.
type counter struct {
	v    instr.Int64
	park instr.Parker
}

func newCounter() any {
	return &counter{}
}

func incr(t *instr.Thread, c *counter, _ []ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.v.Add(t, 1)), nil
}

func racyIncr(t *instr.Thread, c *counter, _ []ir.IRValue) (ir.IRValue, error) {
	v := c.v.Load(t) + 1
	c.v.Store(t, v)
	return ir.IRInt(v), nil
}

func get(t *instr.Thread, c *counter, _ []ir.IRValue) (ir.IRValue, error) {
	return ir.IRInt(c.v.Load(t)), nil
}

func decr(t *instr.Thread, c *counter, _ []ir.IRValue) (ir.IRValue, error) {
	for {
		v := c.v.Load(t)
		if v == 0 {
			return nil, errEmpty
		}
		if c.v.CompareAndSwap(t, v, v-1) {
			return nil, nil
		}
	}
}

func atomicCounter() *Subject {
	return NewSubject("atomic-counter", newCounter).
		Operation("incr", Run(incr)).
		Operation("get", Run(get)).
		Operation("decr", Run(decr), Handles("Empty", errEmpty)).
		MustBuild()
}

func racyCounter() *Subject {
	return NewSubject("racy-counter", newCounter).
		Operation("incr", Run(racyIncr)).
		MustBuild()
}

func explodingCounter() *Subject {
	return NewSubject("exploding-counter", newCounter).
		Operation("incr", Run(incr)).
		Operation("explode", Run(func(*instr.Thread, *counter, []ir.IRValue) (ir.IRValue, error) {
			panic("kaboom")
		})).
		MustBuild()
}

// stuckCounter parks every caller and never unparks anyone.
func stuckCounter() *Subject {
	return NewSubject("stuck-counter", newCounter).
		Operation("wait", Run(func(t *instr.Thread, c *counter, _ []ir.IRValue) (ir.IRValue, error) {
			c.park.Park(t)
			return nil, nil
		})).
		MustBuild()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// small returns options for a quick deterministic managed check.
func small(opts ...Option) []Option {
	base := []Option{
		WithLogger(discard()),
		WithRunIDGenerator(engine.NewFixedGenerator("run-1", "run-2")),
		WithStrategy(StrategyManaged),
		WithIterations(10),
		WithInvocationsPerIteration(20),
		WithActors(2, 1, 1),
		WithSeed(7),
	}
	return append(base, opts...)
}

// recorder is an Observer counting callbacks.
type recorder struct {
	mu         sync.Mutex
	iterations int
	runs       map[RunOutcome]int
	verdicts   map[bool]int
}

func newRecorder() *recorder {
	return &recorder{runs: map[RunOutcome]int{}, verdicts: map[bool]int{}}
}

func (r *recorder) IterationStarted(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations++
}

func (r *recorder) RunFinished(o RunOutcome, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[o]++
}

func (r *recorder) Verified(ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts[ok]++
}

// call builds an invocation of the named operation.
func call(s *Subject, name string, args ...ir.IRValue) ir.Invocation {
	op, ok := s.Operation(name)
	if !ok {
		panic("unknown operation " + name)
	}
	return ir.Invocation{Op: op, Args: args}
}

func val(n int64) ir.Outcome {
	return ir.ValueOutcome(ir.IRInt(n))
}
