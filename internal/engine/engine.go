package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/interleave/internal/instr"
	"github.com/roach88/interleave/internal/ir"
)

// Factory creates a fresh subject instance. The engine calls it once per
// run; instances are never shared across runs.
type Factory func() any

// Attempt positions a run among the repeated runs of one scenario.
// Strategies use it to escalate perturbation over the iteration.
type Attempt struct {
	Index int // 0-based
	Total int
}

// Strategy executes the parallel part of a scenario.
//
// Implementations start one worker per thread sequence, release them
// together, preserve per-thread invocation order, and return one outcome
// sequence per thread. Any error aborts the run.
type Strategy interface {
	Name() string
	RunParallel(ctx context.Context, subject any, threads [][]ir.Invocation, attempt Attempt) ([][]ir.Outcome, error)
}

// DefaultTimeout bounds a single run.
const DefaultTimeout = 10 * time.Second

// Engine runs scenarios against fresh subject instances.
//
// The initial and final parts always run sequentially on logical thread 0.
// The parallel part is delegated to the configured Strategy, with workers
// numbered 1..T.
//
// Thread-safety: an Engine may run one scenario at a time.
type Engine struct {
	strategy Strategy
	timeout  time.Duration
	logger   *slog.Logger
	clock    *Clock
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithTimeout sets the wall-clock budget per run.
//
// Default: 10s (DefaultTimeout). Zero disables the budget.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine running the parallel part with strategy.
func New(strategy Strategy, opts ...EngineOption) *Engine {
	e := &Engine{
		strategy: strategy,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		clock:    NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategy returns the configured strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Runs returns how many runs the engine has started.
func (e *Engine) Runs() int64 {
	return e.clock.Current()
}

// Run executes scenario s once against a fresh subject from factory.
//
// The returned result always matches the shape of s. On error no result is
// returned: run faults (RUN_FAULT) point at the subject, every other
// RunError is inconclusive.
func (e *Engine) Run(ctx context.Context, s *ir.Scenario, factory Factory, attempt Attempt) (*ir.ExecutionResult, error) {
	run := e.clock.Next()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	subject, err := create(factory)
	if err != nil {
		return nil, err
	}

	seq := instr.Sequential()
	res := &ir.ExecutionResult{}

	if res.Initial, err = runSequential(ctx, seq, subject, s.Initial); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, NewTimeoutError(err)
	}

	res.Parallel, err = e.strategy.RunParallel(ctx, subject, s.Parallel, attempt)
	if err != nil {
		e.logger.Debug("parallel part aborted",
			"run", run,
			"strategy", e.strategy.Name(),
			"error", err,
		)
		return nil, err
	}

	if res.Final, err = runSequential(ctx, seq, subject, s.Final); err != nil {
		return nil, err
	}
	return res, nil
}

// create invokes factory, turning a panic into a run fault.
func create(factory Factory) (subject any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewRunFault(0, "<factory>", &panicError{value: r})
		}
	}()
	return factory(), nil
}

// runSequential runs invs in order on t. The deadline of ctx is checked
// before every invocation; a blocked invocation is not interrupted.
func runSequential(ctx context.Context, t *instr.Thread, subject any, invs []ir.Invocation) ([]ir.Outcome, error) {
	outs := make([]ir.Outcome, len(invs))
	for i, inv := range invs {
		if err := ctx.Err(); err != nil {
			return nil, NewTimeoutError(err)
		}
		out, err := execute(t, subject, inv)
		if err != nil {
			return nil, err
		}
		outs[i] = out
	}
	return outs, nil
}

// execute runs one invocation, converting escaped errors and panics into
// run faults. Scheduler aborts raised inside instrumentation callbacks are
// passed through unchanged.
func execute(t *instr.Thread, subject any, inv ir.Invocation) (out ir.Outcome, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if a, ok := r.(abortSignal); ok {
			err = a.err
			return
		}
		err = NewRunFault(t.ID(), inv.String(), &panicError{value: r})
	}()

	out, err = inv.Execute(t, subject)
	if err != nil {
		var re *RunError
		if errors.As(err, &re) {
			return ir.Outcome{}, err
		}
		return ir.Outcome{}, NewRunFault(t.ID(), inv.String(), fmt.Errorf("%s: %w", inv.Name(), err))
	}
	return out, nil
}

// abortSignal unwinds a worker whose run was aborted by the scheduler.
type abortSignal struct {
	err error
}
