package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var errEmpty = errors.New("empty")

type stack struct {
	items []int64
}

// testSubject is a sequential stack; the archive never runs it.
func testSubject() *harness.Subject {
	return harness.NewSubject("stack", func() any { return &stack{} }).
		Operation("push", harness.Run(func(_ *instr.Thread, s *stack, args []ir.IRValue) (ir.IRValue, error) {
			s.items = append(s.items, int64(args[0].(ir.IRInt)))
			return nil, nil
		}), harness.Param("int", "1:3")).
		Operation("pop", harness.Run(func(_ *instr.Thread, s *stack, _ []ir.IRValue) (ir.IRValue, error) {
			if len(s.items) == 0 {
				return nil, errEmpty
			}
			v := s.items[len(s.items)-1]
			s.items = s.items[:len(s.items)-1]
			return ir.IRInt(v), nil
		}), harness.Handles("Empty", errEmpty)).
		MustBuild()
}

func call(s *harness.Subject, name string, args ...ir.IRValue) ir.Invocation {
	op, _ := s.Operation(name)
	return ir.Invocation{Op: op, Args: args}
}

// createTestReport creates a report of a failed check with run ID id.
func createTestReport(id string) *harness.Report {
	s := testSubject()
	sc := &ir.Scenario{
		Initial: []ir.Invocation{call(s, "push", ir.IRInt(1))},
		Parallel: [][]ir.Invocation{
			{call(s, "pop")},
			{call(s, "pop")},
		},
	}
	res := &ir.ExecutionResult{
		Initial:  []ir.Outcome{ir.VoidOutcome()},
		Parallel: [][]ir.Outcome{{ir.ValueOutcome(ir.IRInt(1))}, {ir.ValueOutcome(ir.IRInt(1))}},
	}
	return &harness.Report{
		RunID:      id,
		Subject:    "stack",
		Verifier:   "linearizability",
		Strategy:   harness.StrategyStress,
		Seed:       42,
		Iterations: 4,
		Runs:       310,
		Verified:   309,
		Faults:     1,
		Failure: &harness.VerificationError{
			RunID:     id,
			Subject:   "stack",
			Verifier:  "linearizability",
			Strategy:  "stress",
			Iteration: 4,
			Run:       9,
			Seed:      42,
			Minimized: true,
			Scenario:  sc,
			Result:    res,
		},
	}
}

// createPassedReport creates a report of a passed check.
func createPassedReport(id, subject string) *harness.Report {
	return &harness.Report{
		RunID:      id,
		Subject:    subject,
		Verifier:   "linearizability",
		Strategy:   harness.StrategyManaged,
		Seed:       1,
		Iterations: 10,
		Runs:       100,
		Verified:   100,
	}
}
