package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/interleave/internal/ir"
)

// ConfigError reports a check that cannot run at all: a broken subject
// descriptor or invalid options. Configuration errors are fatal and never
// retried.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeNoOperations indicates a subject without operations.
	ErrCodeNoOperations ConfigErrorCode = "NO_OPERATIONS"

	// ErrCodeBadParam indicates a malformed parameter domain or operation.
	ErrCodeBadParam ConfigErrorCode = "BAD_PARAM"

	// ErrCodeBadOptions indicates invalid check options.
	ErrCodeBadOptions ConfigErrorCode = "BAD_OPTIONS"

	// ErrCodeUnsatisfiableGroup indicates a non-parallel group that no
	// operation belongs to.
	ErrCodeUnsatisfiableGroup ConfigErrorCode = "UNSATISFIABLE_GROUP"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsConfigError returns true if the error is a configuration error.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// VerificationError reports a result that the verifier could not explain.
// It carries everything needed to reproduce the failure.
type VerificationError struct {
	RunID     string
	Subject   string
	Verifier  string
	Strategy  string
	Iteration int // 1-based
	Run       int // 1-based, within the iteration
	Seed      uint64

	// Minimized is set when Scenario was shrunk from the generated one.
	Minimized bool

	Scenario *ir.Scenario
	Result   *ir.ExecutionResult
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s violated at iteration %d, run %d (seed %d)",
		e.Subject, e.Verifier, e.Iteration, e.Run, e.Seed)
}

// Details renders the failing scenario and result in columns.
func (e *VerificationError) Details() string {
	var b strings.Builder
	_ = RenderFailure(&b, e.Scenario, e.Result)
	return b.String()
}

// IsVerificationError returns true if the error is a verification failure.
func IsVerificationError(err error) bool {
	var ve *VerificationError
	return errors.As(err, &ve)
}

// AsVerificationError extracts the verification failure from err.
func AsVerificationError(err error) (*VerificationError, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
