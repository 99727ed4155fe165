package engine

import (
	"errors"
	"fmt"
)

// CallBudget bounds the number of scheduling points a managed run may pass
// through.
//
// Each managed run gets its own CallBudget. The scheduler checks it at
// every interception callback, before choosing the next worker. A subject
// that spins forever (livelock, or a retry loop that never succeeds under
// the chosen interleaving) exhausts the budget instead of hanging the
// check.
//
// Thread-safety: CallBudget is NOT safe for concurrent use. The managed
// scheduler only touches it while holding its own lock.
type CallBudget struct {
	max     int
	current int
}

// NewCallBudget creates a budget with the given limit.
// A limit of 0 or less disables the check.
func NewCallBudget(max int) *CallBudget {
	return &CallBudget{max: max}
}

// Check increments the counter and validates against the limit.
//
// Returns BudgetExceededError once the limit is passed.
func (b *CallBudget) Check() error {
	b.current++
	if b.max > 0 && b.current > b.max {
		return &BudgetExceededError{Calls: b.current, Limit: b.max}
	}
	return nil
}

// Reset resets the counter to 0.
func (b *CallBudget) Reset() {
	b.current = 0
}

// Current returns the number of checks so far.
func (b *CallBudget) Current() int {
	return b.current
}

// Max returns the configured limit.
func (b *CallBudget) Max() int {
	return b.max
}

// BudgetExceededError is returned when a run passes more scheduling points
// than its budget allows. The run is inconclusive.
type BudgetExceededError struct {
	Calls int
	Limit int
}

// Error implements the error interface.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("run exceeded call budget: %d calls > %d limit", e.Calls, e.Limit)
}

// IsBudgetExceededError returns true if the error is a BudgetExceededError.
// Uses errors.As to handle wrapped errors.
func IsBudgetExceededError(err error) bool {
	var be *BudgetExceededError
	return errors.As(err, &be)
}
