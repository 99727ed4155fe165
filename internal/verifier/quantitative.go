package verifier

import (
	"fmt"

	"github.com/roach88/interleave/internal/ir"
)

// CostCounter is a reference model for quantitative relaxation. Each
// value is an immutable state; Next returns the states reachable by
// replaying one invocation with its recorded outcome.
//
// For operations that are not Relaxed, Next returns at most one transition
// (none when the outcome is wrong) and its cost is ignored. For relaxed
// operations it returns every acceptable successor with its cost and
// predicate; the path-cost function decides which survive.
type CostCounter interface {
	Next(inv ir.Invocation, out ir.Outcome) ([]Transition, error)

	// Key identifies the state. Equal keys must behave identically.
	Key() string
}

// CostCounterFactory creates the initial cost counter for a relaxation
// factor.
type CostCounterFactory func(factor int) CostCounter

// Transition is one successor of a CostCounter.
type Transition struct {
	Next      CostCounter
	Cost      int
	Predicate bool
}

// Cost creates a transition whose predicate holds iff cost is non-zero.
func Cost(next CostCounter, cost int) Transition {
	return Transition{Next: next, Cost: cost, Predicate: cost != 0}
}

// Flag creates a zero-cost transition with an explicit predicate, for use
// with PhiInterval.
func Flag(next CostCounter, predicate bool) Transition {
	return Transition{Next: next, Predicate: predicate}
}

// Exact returns the single transition of a non-relaxed operation, or none
// when ok is false.
func Exact(next CostCounter, ok bool) []Transition {
	if !ok {
		return nil
	}
	return []Transition{{Next: next}}
}

// QuantitativeRelaxation accepts a result when some interleaving, as for
// linearizability, is accepted by the cost counter with a path cost within
// the relaxation factor. With a factor of 0 relaxed transitions must be
// exact: zero cost under MaxCost, an unsatisfied predicate under
// PhiInterval.
type QuantitativeRelaxation struct {
	counters CostCounterFactory
	fn       PathCostFunc
	factor   int
}

var _ Verifier = (*QuantitativeRelaxation)(nil)

// NewQuantitativeRelaxation creates a quantitative-relaxation verifier.
func NewQuantitativeRelaxation(counters CostCounterFactory, fn PathCostFunc, factor int) (*QuantitativeRelaxation, error) {
	if counters == nil {
		return nil, fmt.Errorf("quantitative relaxation requires a cost counter")
	}
	if factor < 0 {
		return nil, fmt.Errorf("relaxation factor must be non-negative, got %d", factor)
	}
	if _, ok := pathCostNames[fn]; !ok {
		return nil, fmt.Errorf("unknown path cost function %v", fn)
	}
	return &QuantitativeRelaxation{counters: counters, fn: fn, factor: factor}, nil
}

// relaxedNode is a search node: the cost counter state plus the path
// counter.
type relaxedNode struct {
	counter CostCounter
	path    pathCounter
}

// Verify implements Verifier.
func (v *QuantitativeRelaxation) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	h, err := split(s, r)
	if err != nil {
		return false, err
	}
	sp := space[relaxedNode]{
		start: func() (relaxedNode, error) {
			c, err := v.initial()
			if err != nil {
				return relaxedNode{}, err
			}
			return relaxedNode{counter: c, path: pathCounter{fn: v.fn, factor: v.factor}}, nil
		},
		step:   v.step,
		key:    func(n relaxedNode) string { return n.counter.Key() + "#" + n.path.String() },
		window: 1,
	}
	return search(sp, h)
}

func (v *QuantitativeRelaxation) initial() (c CostCounter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ModelError{Invocation: "<cost counter>", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	c = v.counters(v.factor)
	if c == nil {
		return nil, &ModelError{Invocation: "<cost counter>", Cause: fmt.Errorf("factory returned nil")}
	}
	return c, nil
}

func (v *QuantitativeRelaxation) step(n relaxedNode, inv ir.Invocation, out ir.Outcome) (succ []relaxedNode, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ModelError{Invocation: inv.String(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	ts, err := n.counter.Next(inv, out)
	if err != nil {
		return nil, &ModelError{Invocation: inv.String(), Cause: err}
	}
	for _, t := range ts {
		if t.Next == nil {
			continue
		}
		if !inv.Op.Relaxed {
			succ = append(succ, relaxedNode{counter: t.Next, path: n.path})
			continue
		}
		if p, ok := n.path.next(t); ok {
			succ = append(succ, relaxedNode{counter: t.Next, path: p})
		}
	}
	return succ, nil
}
