package verifier

import "github.com/roach88/interleave/internal/ir"

// Epsilon accepts every result. It exercises execution without checking
// anything.
type Epsilon struct{}

var _ Verifier = Epsilon{}

// Verify implements Verifier.
func (Epsilon) Verify(*ir.Scenario, *ir.ExecutionResult) (bool, error) {
	return true, nil
}
