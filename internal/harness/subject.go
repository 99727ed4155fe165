package harness

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/paramgen"
	"github.com/roach88/interleave/internal/verifier"
)

// Subject describes a concurrent implementation under test: how to create
// it, which operations it exposes and how to check it.
//
// Subjects are built with NewSubject; the zero value is not usable.
type Subject struct {
	Name string

	// Factory creates a fresh instance for every run.
	Factory engine.Factory

	// Model creates sequential reference instances for verification.
	// Defaults to Factory.
	Model verifier.ModelFactory

	// Operations is the operation table, in declaration order.
	Operations []*ir.Operation

	// NonParallelGroups names groups whose operations must share a thread.
	NonParallelGroups []string

	// CostCounter is required by quantitative relaxation.
	CostCounter verifier.CostCounterFactory
}

// Operation returns the operation named name.
func (s *Subject) Operation(name string) (*ir.Operation, bool) {
	for _, op := range s.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return nil, false
}

func (s *Subject) model() verifier.ModelFactory {
	if s.Model != nil {
		return s.Model
	}
	return verifier.ModelFactory(s.Factory)
}

// Builder assembles a Subject. Errors are collected and reported together
// by Build.
type Builder struct {
	subject Subject
	errs    []*ConfigError
}

// NewSubject starts a subject descriptor.
func NewSubject(name string, factory func() any) *Builder {
	b := &Builder{subject: Subject{Name: name, Factory: factory}}
	if factory == nil {
		b.fail(ErrCodeBadParam, "subject "+name+" has no factory", nil)
	}
	return b
}

func (b *Builder) fail(code ConfigErrorCode, msg string, cause error) {
	b.errs = append(b.errs, &ConfigError{Code: code, Message: msg, Cause: cause})
}

// Model sets the sequential reference implementation.
func (b *Builder) Model(factory func() any) *Builder {
	b.subject.Model = factory
	return b
}

// CostCounter sets the cost counter used by quantitative relaxation.
func (b *Builder) CostCounter(f verifier.CostCounterFactory) *Builder {
	b.subject.CostCounter = f
	return b
}

// NonParallelGroup constrains every operation of group to a single thread
// of the parallel part.
func (b *Builder) NonParallelGroup(group string) *Builder {
	if !slices.Contains(b.subject.NonParallelGroups, group) {
		b.subject.NonParallelGroups = append(b.subject.NonParallelGroups, group)
	}
	return b
}

// Operation declares an operation.
func (b *Builder) Operation(name string, run ir.RunFunc, opts ...OpOption) *Builder {
	if name == "" {
		b.fail(ErrCodeBadParam, "operation without a name", nil)
		return b
	}
	if _, dup := b.subject.Operation(name); dup {
		b.fail(ErrCodeBadParam, "duplicate operation "+name, nil)
		return b
	}
	if run == nil {
		b.fail(ErrCodeBadParam, "operation "+name+" has no implementation", nil)
		return b
	}

	op := &ir.Operation{Name: name, Run: run}
	for _, opt := range opts {
		if err := opt(op); err != nil {
			b.fail(ErrCodeBadParam, "operation "+name, err)
			return b
		}
	}
	b.subject.Operations = append(b.subject.Operations, op)
	return b
}

// Build validates the descriptor.
func (b *Builder) Build() (*Subject, error) {
	s := b.subject
	if len(s.Operations) == 0 && len(b.errs) == 0 {
		b.fail(ErrCodeNoOperations, "subject "+s.Name+" declares no operations", nil)
	}
	for _, g := range s.NonParallelGroups {
		if !slices.ContainsFunc(s.Operations, func(op *ir.Operation) bool { return op.Group == g }) {
			b.fail(ErrCodeUnsatisfiableGroup, fmt.Sprintf("non-parallel group %q has no operations", g), nil)
		}
	}

	switch len(b.errs) {
	case 0:
		return &s, nil
	case 1:
		return nil, b.errs[0]
	default:
		// report the first code, keep every message
		causes := make([]error, len(b.errs))
		for i, e := range b.errs {
			causes[i] = e
		}
		return nil, &ConfigError{Code: b.errs[0].Code, Message: "invalid subject " + s.Name, Cause: errors.Join(causes...)}
	}
}

// MustBuild is like Build but panics on error. Use for statically known
// subjects.
func (b *Builder) MustBuild() *Subject {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Run adapts a typed operation body to ir.RunFunc. The subject instance is
// asserted to S; a mismatch is reported as an error.
func Run[S any](fn func(t *instr.Thread, s S, args []ir.IRValue) (ir.IRValue, error)) ir.RunFunc {
	return func(t *instr.Thread, subject any, args []ir.IRValue) (ir.IRValue, error) {
		s, ok := subject.(S)
		if !ok {
			return nil, fmt.Errorf("subject is %T, want %T", subject, *new(S))
		}
		return fn(t, s, args)
	}
}

// OpOption configures a declared operation.
type OpOption func(op *ir.Operation) error

// Params sets one generator per argument.
func Params(gens ...paramgen.Generator) OpOption {
	return func(op *ir.Operation) error {
		for _, g := range gens {
			op.Params = append(op.Params, g)
		}
		return nil
	}
}

// Param adds an argument generator parsed from its textual form, for
// example Param("int", "1:5").
func Param(kind, config string) OpOption {
	return func(op *ir.Operation) error {
		g, err := paramgen.Parse(kind, config)
		if err != nil {
			return err
		}
		op.Params = append(op.Params, g)
		return nil
	}
}

// Handles declares err as a legitimate result, recorded as name.
func Handles(name string, err error) OpOption {
	return func(op *ir.Operation) error {
		if name == "" || err == nil {
			return fmt.Errorf("handled error needs a name and a target")
		}
		op.Handled = append(op.Handled, ir.HandledError{Name: name, Target: err})
		return nil
	}
}

// HandlesFunc declares every error accepted by match as a legitimate
// result, recorded as name.
func HandlesFunc(name string, match func(error) bool) OpOption {
	return func(op *ir.Operation) error {
		if name == "" || match == nil {
			return fmt.Errorf("handled error needs a name and a matcher")
		}
		op.Handled = append(op.Handled, ir.HandledError{Name: name, Match: match})
		return nil
	}
}

// RunOnce limits the operation to one invocation per scenario.
func RunOnce() OpOption {
	return func(op *ir.Operation) error {
		op.RunOnce = true
		return nil
	}
}

// Group assigns the operation to a group.
func Group(name string) OpOption {
	return func(op *ir.Operation) error {
		op.Group = name
		return nil
	}
}

// QuiescentBoundary marks the operation for quiescent consistency.
func QuiescentBoundary() OpOption {
	return func(op *ir.Operation) error {
		op.QuiescentBoundary = true
		return nil
	}
}

// Relaxed marks the operation for quantitative and quasi verification.
func Relaxed() OpOption {
	return func(op *ir.Operation) error {
		op.Relaxed = true
		return nil
	}
}

// ModelRun sets a separate body for the reference model.
func ModelRun(run ir.RunFunc) OpOption {
	return func(op *ir.Operation) error {
		op.Model = run
		return nil
	}
}
