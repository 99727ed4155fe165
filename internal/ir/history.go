package ir

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/roach88/interleave/internal/instr"
)

// RunFunc dispatches one operation against a subject instance.
//
// Returning a nil IRValue means the operation produced no value (Void);
// return IRNull{} for an explicit null result. A non-nil error is either a
// handled error (see Operation.Handled) or a run fault.
type RunFunc func(t *instr.Thread, subject any, args []IRValue) (IRValue, error)

// ArgGenerator produces argument values. Implemented by package paramgen.
type ArgGenerator interface {
	Generate(r *rand.Rand) IRValue
}

// HandledError declares an error that is a legitimate result of an
// operation. Matching uses errors.Is against Target, or Match if set.
type HandledError struct {
	Name   string
	Target error
	Match  func(error) bool
}

func (h HandledError) matches(err error) bool {
	if h.Match != nil {
		return h.Match(err)
	}
	return h.Target != nil && errors.Is(err, h.Target)
}

// Operation describes one callable member of a subject.
type Operation struct {
	// Name identifies the operation in scenarios, reports and archives.
	Name string

	// Params holds one generator per argument.
	Params []ArgGenerator

	// Handled lists errors recorded as Error outcomes rather than faults.
	Handled []HandledError

	// RunOnce restricts the operation to at most one invocation per scenario.
	RunOnce bool

	// Group names the operation group; see scenario.Config.NonParallelGroups.
	Group string

	// QuiescentBoundary marks invocations that must be ordered as if the
	// system were quiescent around them.
	QuiescentBoundary bool

	// Relaxed marks operations checked through a cost counter by the
	// quantitative and quasi verifiers.
	Relaxed bool

	// Run executes the operation against the subject under test.
	Run RunFunc

	// Model executes the operation against the sequential reference
	// implementation. Nil means Run is used for both.
	Model RunFunc
}

// HandledName returns the declared name for err, if err is handled.
func (op *Operation) HandledName(err error) (string, bool) {
	for _, h := range op.Handled {
		if h.matches(err) {
			return h.Name, true
		}
	}
	return "", false
}

// Invocation is a concrete call: an operation with bound arguments.
type Invocation struct {
	Op   *Operation
	Args []IRValue
}

// Name returns the operation name.
func (inv Invocation) Name() string {
	if inv.Op == nil {
		return ""
	}
	return inv.Op.Name
}

// Key identifies the invocation content: operation name plus canonical
// arguments. Two invocations with equal keys behave identically on equal
// reference states.
func (inv Invocation) Key() string {
	args, err := MarshalCanonical(IRArray(inv.Args))
	if err != nil {
		return inv.Name() + fmt.Sprintf("%v", inv.Args)
	}
	return inv.Name() + string(args)
}

// String renders the invocation as name(arg1, arg2).
func (inv Invocation) String() string {
	parts := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		parts[i] = Format(a)
	}
	return inv.Name() + "(" + strings.Join(parts, ", ") + ")"
}

// Execute runs the invocation against subject on thread t. Handled errors
// become Error outcomes; any other error is returned as is.
func (inv Invocation) Execute(t *instr.Thread, subject any) (Outcome, error) {
	return inv.exec(inv.Op.Run, t, subject)
}

// ExecuteModel runs the invocation against a sequential reference instance.
func (inv Invocation) ExecuteModel(subject any) (Outcome, error) {
	run := inv.Op.Model
	if run == nil {
		run = inv.Op.Run
	}
	return inv.exec(run, instr.Sequential(), subject)
}

func (inv Invocation) exec(run RunFunc, t *instr.Thread, subject any) (Outcome, error) {
	if run == nil {
		return Outcome{}, fmt.Errorf("operation %q has no implementation", inv.Name())
	}
	v, err := run(t, subject, inv.Args)
	if err != nil {
		if name, ok := inv.Op.HandledName(err); ok {
			return ErrorOutcome(name), nil
		}
		return Outcome{}, err
	}
	if v == nil {
		return VoidOutcome(), nil
	}
	return ValueOutcome(v), nil
}

// OutcomeKind discriminates Outcome.
type OutcomeKind string

const (
	OutcomeVoid  OutcomeKind = "void"
	OutcomeValue OutcomeKind = "value"
	OutcomeError OutcomeKind = "error"
)

// Outcome is the result of executing an invocation: no value, a returned
// value, or a declared error name.
type Outcome struct {
	Kind  OutcomeKind
	Value IRValue
	Error string
}

// VoidOutcome is the result of an operation that returns nothing.
func VoidOutcome() Outcome {
	return Outcome{Kind: OutcomeVoid}
}

// ValueOutcome wraps a returned value. A nil value is stored as IRNull.
func ValueOutcome(v IRValue) Outcome {
	if v == nil {
		v = IRNull{}
	}
	return Outcome{Kind: OutcomeValue, Value: v}
}

// ErrorOutcome records a handled error by its declared name.
func ErrorOutcome(name string) Outcome {
	return Outcome{Kind: OutcomeError, Error: name}
}

// Equal reports structural equality.
func (o Outcome) Equal(other Outcome) bool {
	return o.Key() == other.Key()
}

// Key is the canonical form of the outcome.
func (o Outcome) Key() string {
	switch o.Kind {
	case OutcomeValue:
		b, err := MarshalCanonical(o.Value)
		if err != nil {
			return "value:" + fmt.Sprintf("%v", o.Value)
		}
		return "value:" + string(b)
	case OutcomeError:
		return "error:" + o.Error
	default:
		return "void"
	}
}

// String renders the outcome for reports.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeValue:
		return Format(o.Value)
	case OutcomeError:
		return o.Error
	default:
		return "void"
	}
}

// Scenario is what gets run: a sequential prefix, one invocation sequence
// per parallel thread, and a sequential suffix.
type Scenario struct {
	Initial  []Invocation
	Parallel [][]Invocation
	Final    []Invocation
}

// Threads returns the number of parallel threads.
func (s *Scenario) Threads() int {
	return len(s.Parallel)
}

// Size returns the total number of invocations.
func (s *Scenario) Size() int {
	n := len(s.Initial) + len(s.Final)
	for _, th := range s.Parallel {
		n += len(th)
	}
	return n
}

// Operations returns the distinct operations used by the scenario, in
// first-appearance order.
func (s *Scenario) Operations() []*Operation {
	seen := make(map[*Operation]bool)
	var ops []*Operation
	add := func(invs []Invocation) {
		for _, inv := range invs {
			if !seen[inv.Op] {
				seen[inv.Op] = true
				ops = append(ops, inv.Op)
			}
		}
	}
	add(s.Initial)
	for _, th := range s.Parallel {
		add(th)
	}
	add(s.Final)
	return ops
}

// ExecutionResult mirrors a Scenario with one Outcome per invocation.
type ExecutionResult struct {
	Initial  []Outcome
	Parallel [][]Outcome
	Final    []Outcome
}

// MatchesShape reports whether r has exactly the shape of s.
func (r *ExecutionResult) MatchesShape(s *Scenario) bool {
	if r == nil || s == nil {
		return false
	}
	if len(r.Initial) != len(s.Initial) || len(r.Final) != len(s.Final) {
		return false
	}
	if len(r.Parallel) != len(s.Parallel) {
		return false
	}
	for i := range s.Parallel {
		if len(r.Parallel[i]) != len(s.Parallel[i]) {
			return false
		}
	}
	return true
}

// Key is a canonical string for the whole result, used to memoize
// verdicts.
func (r *ExecutionResult) Key() string {
	var b strings.Builder
	part := func(outs []Outcome) {
		b.WriteByte('[')
		for i, o := range outs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(o.Key())
		}
		b.WriteByte(']')
	}
	part(r.Initial)
	b.WriteByte('|')
	for _, th := range r.Parallel {
		part(th)
	}
	b.WriteByte('|')
	part(r.Final)
	return b.String()
}
