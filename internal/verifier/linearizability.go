package verifier

import (
	"github.com/roach88/interleave/internal/ir"
)

// Linearizability accepts a result when some interleaving that respects
// per-thread order, with the initial part first and the final part last,
// reproduces every recorded outcome on the reference model.
type Linearizability struct {
	lts *lts
}

var _ Verifier = (*Linearizability)(nil)

// NewLinearizability creates a linearizability verifier over model.
func NewLinearizability(model ModelFactory) *Linearizability {
	return &Linearizability{lts: newLTS(model)}
}

// Verify implements Verifier.
func (v *Linearizability) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	h, err := split(s, r)
	if err != nil {
		return false, err
	}
	return search(v.space(1), h)
}

// States returns how many distinct reference states have been discovered.
func (v *Linearizability) States() int {
	return v.lts.size()
}

// space is the exact search: a transition survives only when the model
// produces the recorded outcome.
func (v *Linearizability) space(window int) space[*state] {
	return space[*state]{
		start: v.lts.start,
		step: func(n *state, inv ir.Invocation, out ir.Outcome) ([]*state, error) {
			got, next, err := v.lts.next(n, inv)
			if err != nil {
				return nil, err
			}
			if !got.Equal(out) {
				return nil, nil
			}
			return []*state{next}, nil
		},
		key:    func(n *state) string { return n.key },
		window: window,
	}
}
