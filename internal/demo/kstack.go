package demo

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/verifier"
)

// KStack is a stack whose pop removes one of the k topmost values.
type KStack struct {
	mu    instr.Mutex
	r     *rand.Rand
	k     int
	items []int64 // top last
}

// NewKStack returns a factory of k-relaxed stacks.
func NewKStack(k int) func() any {
	return func() any {
		return &KStack{r: newRand(), k: k}
	}
}

// Push adds v on top.
func (s *KStack) Push(t *instr.Thread, v int64) {
	s.mu.Lock(t)
	defer s.mu.Unlock(t)
	s.items = append(s.items, v)
}

// Pop removes a value at depth below k.
func (s *KStack) Pop(t *instr.Thread) (int64, error) {
	s.mu.Lock(t)
	defer s.mu.Unlock(t)
	if len(s.items) == 0 {
		return 0, ErrEmpty
	}
	depth := min(s.r.IntN(s.k), len(s.items)-1)
	i := len(s.items) - 1 - depth
	v := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return v, nil
}

// StateKey names the stack contents. The random source is left out, so
// only the exact variant (k = 1) is a faithful reference model.
func (s *KStack) StateKey() string {
	return fmt.Sprint(s.items)
}

// kStackCost tracks the exact stack; a pop at depth d costs d.
type kStackCost struct {
	items []int64 // top first
}

func newKStackCost(int) verifier.CostCounter {
	return kStackCost{}
}

func (c kStackCost) Key() string {
	return fmt.Sprint(c.items)
}

func (c kStackCost) Next(inv ir.Invocation, out ir.Outcome) ([]verifier.Transition, error) {
	switch inv.Name() {
	case "push":
		v := int64(inv.Args[0].(ir.IRInt))
		next := kStackCost{items: append([]int64{v}, c.items...)}
		return verifier.Exact(next, out.Equal(ir.VoidOutcome())), nil
	case "pop":
		if out.Equal(ir.ErrorOutcome("Empty")) {
			return verifier.Exact(c, len(c.items) == 0), nil
		}
		var ts []verifier.Transition
		for d, v := range c.items {
			if out.Equal(ir.ValueOutcome(ir.IRInt(v))) {
				next := kStackCost{items: slices.Delete(slices.Clone(c.items), d, d+1)}
				ts = append(ts, verifier.Cost(next, d))
			}
		}
		return ts, nil
	}
	return nil, fmt.Errorf("unknown operation %s", inv.Name())
}

// KRelaxedStack describes a stack whose pop may take any of the k topmost
// values. It satisfies quantitative relaxation with MaxCost and a factor
// of k-1, and is not linearizable for k > 1. Its linearizability model
// is the exact stack, a KStack with k = 1.
func KRelaxedStack(k int) *harness.Subject {
	return harness.NewSubject("k-relaxed-stack", NewKStack(k)).
		Model(NewKStack(1)).
		CostCounter(newKStackCost).
		Operation("push", harness.Run(func(t *instr.Thread, s *KStack, args []ir.IRValue) (ir.IRValue, error) {
			s.Push(t, int64(args[0].(ir.IRInt)))
			return nil, nil
		}), harness.Param("int", "1:9")).
		Operation("pop", harness.Run(func(t *instr.Thread, s *KStack, _ []ir.IRValue) (ir.IRValue, error) {
			v, err := s.Pop(t)
			if err != nil {
				return nil, err
			}
			return ir.IRInt(v), nil
		}), harness.Handles("Empty", ErrEmpty), harness.Relaxed()).
		MustBuild()
}
