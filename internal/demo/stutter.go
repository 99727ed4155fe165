package demo

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/verifier"
)

// StutteringCounter is a counter whose increment sometimes returns the
// current value without incrementing. It never stutters more than maxRun
// times in a row.
type StutteringCounter struct {
	mu      instr.Mutex
	r       *rand.Rand
	maxRun  int
	value   int64
	stutter int
}

// NewStutteringCounter returns a factory of counters stuttering at most
// maxRun times in a row.
func NewStutteringCounter(maxRun int) func() any {
	return func() any {
		return &StutteringCounter{r: newRand(), maxRun: maxRun}
	}
}

// IncrAndGet increments the counter, or stutters, and returns its value.
func (c *StutteringCounter) IncrAndGet(t *instr.Thread) int64 {
	c.mu.Lock(t)
	defer c.mu.Unlock(t)
	if c.stutter < c.maxRun && c.r.IntN(2) == 0 {
		c.stutter++
		return c.value
	}
	c.stutter = 0
	c.value++
	return c.value
}

// Get returns the current value.
func (c *StutteringCounter) Get(t *instr.Thread) int64 {
	c.mu.Lock(t)
	defer c.mu.Unlock(t)
	return c.value
}

// StateKey names the value and the current stutter run.
func (c *StutteringCounter) StateKey() string {
	return strconv.FormatInt(c.value, 10) + "/" + strconv.Itoa(c.stutter)
}

// stutterCost is the cost counter of a stuttering counter: a stutter is a
// zero-cost transition flagged for PhiInterval.
type stutterCost struct {
	value int64
}

func newStutterCost(int) verifier.CostCounter {
	return stutterCost{}
}

func (c stutterCost) Key() string {
	return strconv.FormatInt(c.value, 10)
}

func (c stutterCost) Next(inv ir.Invocation, out ir.Outcome) ([]verifier.Transition, error) {
	switch inv.Name() {
	case "incr":
		var ts []verifier.Transition
		if out.Equal(ir.ValueOutcome(ir.IRInt(c.value + 1))) {
			ts = append(ts, verifier.Flag(stutterCost{value: c.value + 1}, false))
		}
		if out.Equal(ir.ValueOutcome(ir.IRInt(c.value))) {
			ts = append(ts, verifier.Flag(c, true))
		}
		return ts, nil
	case "get":
		return verifier.Exact(c, out.Equal(ir.ValueOutcome(ir.IRInt(c.value)))), nil
	}
	return nil, fmt.Errorf("unknown operation %s", inv.Name())
}

// StutteringCounterSubject describes a counter stuttering at most maxRun
// times in a row. It satisfies quantitative relaxation with PhiInterval and
// a factor of maxRun.
func StutteringCounterSubject(maxRun int) *harness.Subject {
	return harness.NewSubject("stuttering-counter", NewStutteringCounter(maxRun)).
		Model(NewStutteringCounter(0)).
		CostCounter(newStutterCost).
		Operation("incr", harness.Run(func(t *instr.Thread, c *StutteringCounter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.IncrAndGet(t)), nil
		}), harness.Relaxed()).
		Operation("get", harness.Run(func(t *instr.Thread, c *StutteringCounter, _ []ir.IRValue) (ir.IRValue, error) {
			return ir.IRInt(c.Get(t)), nil
		})).
		MustBuild()
}
