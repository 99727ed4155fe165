package verifier

import (
	"fmt"
	"strconv"
)

// PathCostFunc aggregates the transitions of relaxed invocations along one
// search path. A path survives while its aggregate stays within the
// relaxation factor (inclusive).
type PathCostFunc int

const (
	// MaxCost bounds the largest single transition cost. Predicates are
	// ignored.
	MaxCost PathCostFunc = iota

	// PhiInterval bounds the length of the longest run of consecutive
	// relaxed transitions whose predicate holds. Costs are ignored.
	PhiInterval

	// PhiIntervalRestrictedMax bounds, at every transition, the length of
	// the current predicate run plus the transition cost.
	PhiIntervalRestrictedMax
)

var pathCostNames = map[PathCostFunc]string{
	MaxCost:                  "max",
	PhiInterval:              "phi-interval",
	PhiIntervalRestrictedMax: "phi-interval-restricted-max",
}

func (f PathCostFunc) String() string {
	if n, ok := pathCostNames[f]; ok {
		return n
	}
	return "PathCostFunc(" + strconv.Itoa(int(f)) + ")"
}

// ParsePathCostFunc parses the name of a path-cost function.
func ParsePathCostFunc(name string) (PathCostFunc, error) {
	for f, n := range pathCostNames {
		if n == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown path cost function %q (want max, phi-interval or phi-interval-restricted-max)", name)
}

// pathCounter carries the incremental state of a path-cost function: the
// length of the current run of satisfied predicates.
type pathCounter struct {
	fn     PathCostFunc
	factor int
	run    int
}

// next folds transition t into the path. It reports false when the path
// would exceed the factor.
func (p pathCounter) next(t Transition) (pathCounter, bool) {
	run := 0
	if t.Predicate {
		run = p.run + 1
	}

	switch p.fn {
	case MaxCost:
		if t.Cost > p.factor {
			return p, false
		}
		return p, true
	case PhiInterval:
		if run > p.factor {
			return p, false
		}
	case PhiIntervalRestrictedMax:
		// p.run + t.Cost > p.factor, without overflowing on large costs
		if t.Cost > p.factor-p.run {
			return p, false
		}
	default:
		return p, false
	}
	p.run = run
	return p, true
}

func (p pathCounter) String() string {
	return strconv.Itoa(p.run)
}
