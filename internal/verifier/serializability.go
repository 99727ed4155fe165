package verifier

import (
	"github.com/roach88/interleave/internal/ir"
)

// Serializability accepts a result when any total order of all
// invocations reproduces the recorded outcomes. Per-thread order and the
// initial/final phases impose no constraint.
type Serializability struct {
	lin *Linearizability
}

var _ Verifier = (*Serializability)(nil)

// NewSerializability creates a serializability verifier over model.
func NewSerializability(model ModelFactory) *Serializability {
	return &Serializability{lin: NewLinearizability(model)}
}

// Verify implements Verifier.
func (v *Serializability) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	h, err := split(s, r)
	if err != nil {
		return false, err
	}
	return search(v.lin.space(1), flatten(h))
}

// flatten moves every invocation into its own parallel thread, leaving the
// initial and final parts empty.
func flatten(h history) history {
	out := history{
		invs: [][]ir.Invocation{nil},
		outs: [][]ir.Outcome{nil},
	}
	for p := range h.invs {
		for i := range h.invs[p] {
			out.invs = append(out.invs, h.invs[p][i:i+1])
			out.outs = append(out.outs, h.outs[p][i:i+1])
		}
	}
	out.invs = append(out.invs, nil)
	out.outs = append(out.outs, nil)
	return out
}
