package engine

import (
	"errors"
	"fmt"
)

// RunError represents a run that was aborted before producing a result.
//
// Run errors include:
//   - Run fault: an undeclared error or panic escaped an invocation
//   - Timeout: the run exceeded its wall-clock budget
//   - Call budget: the managed scheduler passed too many switch points
//   - Deadlock: no worker could make progress under the managed scheduler
//
// Only run faults point at the subject. The other codes are inconclusive:
// the run is discarded and neither passes nor fails the check.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Thread is the logical worker that failed (0 for the sequential parts).
	Thread int

	// Invocation renders the invocation that was running, if known.
	Invocation string

	// Cause is the underlying error or recovered panic value.
	Cause error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeRunFault indicates an undeclared error or panic in the subject.
	ErrCodeRunFault RunErrorCode = "RUN_FAULT"

	// ErrCodeTimeout indicates the run exceeded its wall-clock budget.
	ErrCodeTimeout RunErrorCode = "TIMEOUT"

	// ErrCodeCallBudget indicates too many scheduling points in one run.
	ErrCodeCallBudget RunErrorCode = "CALL_BUDGET"

	// ErrCodeDeadlock indicates every unfinished worker was blocked.
	ErrCodeDeadlock RunErrorCode = "DEADLOCK"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Invocation != "" {
		msg += fmt.Sprintf(" (thread=%d, invocation=%s)", e.Thread, e.Invocation)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// IsRunFault returns true if the error is a run fault.
// Uses errors.As to handle wrapped errors.
func IsRunFault(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeRunFault
	}
	return false
}

// IsInconclusive returns true if the run was discarded without blaming the
// subject: timeouts, exhausted call budgets and deadlocks.
// Matches both RunError and BudgetExceededError.
func IsInconclusive(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTimeout || re.Code == ErrCodeCallBudget || re.Code == ErrCodeDeadlock
	}
	var be *BudgetExceededError
	return errors.As(err, &be)
}

// NewRunFault creates a RunError for an escaped error or panic.
func NewRunFault(thread int, invocation string, cause error) *RunError {
	return &RunError{
		Code:       ErrCodeRunFault,
		Message:    "invocation raised an undeclared error",
		Thread:     thread,
		Invocation: invocation,
		Cause:      cause,
	}
}

// NewTimeoutError creates a RunError for an exceeded wall-clock budget.
func NewTimeoutError(cause error) *RunError {
	return &RunError{
		Code:    ErrCodeTimeout,
		Message: "run exceeded its time budget",
		Cause:   cause,
	}
}

// NewDeadlockError creates a RunError for a managed run where no worker
// could proceed.
func NewDeadlockError(blocked []int) *RunError {
	return &RunError{
		Code:    ErrCodeDeadlock,
		Message: fmt.Sprintf("all unfinished workers are blocked: %v", blocked),
	}
}

// panicError wraps a recovered panic value.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
