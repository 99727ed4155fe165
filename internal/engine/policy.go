package engine

import (
	"math/rand/v2"
	"slices"
)

// Policy chooses which eligible worker proceeds at a scheduling point.
//
// current is the worker that reached the point, or -1 when the point has
// no running worker (run start, or a worker just finished). eligible is
// sorted ascending and never empty. Choose must return a member of
// eligible; current is eligible only if it may continue.
type Policy interface {
	Choose(current int, eligible []int) int
}

// PolicyFactory creates a fresh policy for each managed run.
type PolicyFactory func(attempt Attempt) Policy

// RandomPolicy switches to a uniformly chosen eligible worker with
// probability SwitchProbability, and otherwise lets the current worker
// continue.
type RandomPolicy struct {
	r                 *rand.Rand
	SwitchProbability float64
}

// NewRandomPolicy creates a seeded random policy.
func NewRandomPolicy(seed uint64, switchProbability float64) *RandomPolicy {
	return &RandomPolicy{
		r:                 rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
		SwitchProbability: switchProbability,
	}
}

// Choose implements Policy.
func (p *RandomPolicy) Choose(current int, eligible []int) int {
	if current >= 0 && slices.Contains(eligible, current) && p.r.Float64() >= p.SwitchProbability {
		return current
	}
	return eligible[p.r.IntN(len(eligible))]
}

// RandomPolicies returns a factory deriving one RandomPolicy per attempt
// from seed.
func RandomPolicies(seed uint64, switchProbability float64) PolicyFactory {
	return func(a Attempt) Policy {
		return NewRandomPolicy(seed+uint64(a.Index), switchProbability)
	}
}

// RoundRobinPolicy hands control to the next eligible worker after the
// current one at every scheduling point. It is deterministic and forces
// the maximum number of context switches.
type RoundRobinPolicy struct{}

// Choose implements Policy.
func (RoundRobinPolicy) Choose(current int, eligible []int) int {
	for _, w := range eligible {
		if w > current {
			return w
		}
	}
	return eligible[0]
}

// RoundRobinPolicies returns a factory for RoundRobinPolicy.
func RoundRobinPolicies() PolicyFactory {
	return func(Attempt) Policy {
		return RoundRobinPolicy{}
	}
}

// ScriptedPolicy replays a fixed sequence of worker choices, falling back
// to the current worker (or the lowest eligible) once the script is
// exhausted or names an ineligible worker. Used to force a specific
// interleaving.
type ScriptedPolicy struct {
	script []int
	pos    int
}

// NewScriptedPolicy creates a policy replaying script.
func NewScriptedPolicy(script ...int) *ScriptedPolicy {
	return &ScriptedPolicy{script: script}
}

// Choose implements Policy.
func (p *ScriptedPolicy) Choose(current int, eligible []int) int {
	if p.pos < len(p.script) {
		w := p.script[p.pos]
		p.pos++
		if slices.Contains(eligible, w) {
			return w
		}
	}
	if slices.Contains(eligible, current) {
		return current
	}
	return eligible[0]
}
