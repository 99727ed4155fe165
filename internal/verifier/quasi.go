package verifier

import (
	"fmt"

	"github.com/roach88/interleave/internal/ir"
)

// QuasiLinearizability accepts a result when it is linearizable after
// moving each Relaxed invocation by fewer than factor positions within its
// thread: a relaxed invocation may take effect before up to factor-1
// pending predecessors, or after up to factor-1 successors.
//
// A factor of 1 is exact linearizability.
type QuasiLinearizability struct {
	lin    *Linearizability
	factor int
}

var _ Verifier = (*QuasiLinearizability)(nil)

// NewQuasiLinearizability creates a quasi-linearizability verifier over
// the sequential model.
func NewQuasiLinearizability(model ModelFactory, factor int) (*QuasiLinearizability, error) {
	if factor < 1 || factor > maxWindow {
		return nil, fmt.Errorf("quasi-linearizability factor must be in [1, %d], got %d", maxWindow, factor)
	}
	return &QuasiLinearizability{lin: NewLinearizability(model), factor: factor}, nil
}

// Verify implements Verifier.
func (v *QuasiLinearizability) Verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	h, err := split(s, r)
	if err != nil {
		return false, err
	}
	return search(v.lin.space(v.factor), h)
}
