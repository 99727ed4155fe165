package verifier

import (
	"github.com/roach88/interleave/internal/ir"
)

// QuiescentConsistency relaxes linearizability around invocations of
// operations marked QuiescentBoundary: in any parallel thread with more
// than one invocation, each marked invocation is detached into a thread of
// its own, free of its original thread's order. Unmarked invocations keep
// their per-thread order.
type QuiescentConsistency struct {
	lin *Linearizability
}

var _ Verifier = (*QuiescentConsistency)(nil)

// NewQuiescentConsistency creates a quiescent-consistency verifier over
// model.
func NewQuiescentConsistency(model ModelFactory) *QuiescentConsistency {
	return &QuiescentConsistency{lin: NewLinearizability(model)}
}

// Verify implements Verifier.
func (v *QuiescentConsistency) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	h, err := split(s, r)
	if err != nil {
		return false, err
	}
	return search(v.lin.space(1), detachBoundaries(h))
}

// detachBoundaries rewrites the parallel parts of h. Detached singleton
// threads follow the original threads, in thread then position order.
func detachBoundaries(h history) history {
	last := len(h.invs) - 1
	out := history{
		invs: [][]ir.Invocation{h.invs[0]},
		outs: [][]ir.Outcome{h.outs[0]},
	}
	var detachedInvs [][]ir.Invocation
	var detachedOuts [][]ir.Outcome

	for p := 1; p < last; p++ {
		var invs []ir.Invocation
		var outs []ir.Outcome
		n := len(h.invs[p])
		for i, inv := range h.invs[p] {
			if inv.Op.QuiescentBoundary && n > 1 {
				detachedInvs = append(detachedInvs, h.invs[p][i:i+1])
				detachedOuts = append(detachedOuts, h.outs[p][i:i+1])
				continue
			}
			invs = append(invs, inv)
			outs = append(outs, h.outs[p][i])
		}
		out.invs = append(out.invs, invs)
		out.outs = append(out.outs, outs)
	}

	out.invs = append(out.invs, detachedInvs...)
	out.outs = append(out.outs, detachedOuts...)
	out.invs = append(out.invs, h.invs[last])
	out.outs = append(out.outs, h.outs[last])
	return out
}
