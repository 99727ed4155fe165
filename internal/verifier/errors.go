package verifier

import (
	"errors"
	"fmt"
)

// ModelError reports a reference model that failed while replaying an
// invocation: a panic or an error not declared as handled. It means the
// model (or the operation table) is broken, not that the result is wrong.
type ModelError struct {
	Invocation string
	Cause      error
}

func (e *ModelError) Error() string {
	if e.Invocation == "" {
		return fmt.Sprintf("reference model failed: %v", e.Cause)
	}
	return fmt.Sprintf("reference model failed on %s: %v", e.Invocation, e.Cause)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// IsModelError returns true if err is or wraps a ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}

// ErrShapeMismatch is returned when a result does not have the shape of
// the scenario it is verified against.
var ErrShapeMismatch = errors.New("result does not match scenario shape")
