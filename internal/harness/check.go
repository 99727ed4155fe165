package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/ir"
	"github.com/roach88/interleave/internal/scenario"
	"github.com/roach88/interleave/internal/verifier"
)

// RunOutcome classifies a finished run.
type RunOutcome string

const (
	RunCompleted    RunOutcome = "completed"
	RunFaulted      RunOutcome = "fault"
	RunInconclusive RunOutcome = "inconclusive"
)

// Observer receives check progress. Implementations must be safe to call
// from the goroutine running Check.
type Observer interface {
	IterationStarted(iteration int)
	RunFinished(outcome RunOutcome, elapsed time.Duration)
	Verified(ok bool, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) IterationStarted(int) {}

func (nopObserver) RunFinished(RunOutcome, time.Duration) {}

func (nopObserver) Verified(bool, time.Duration) {}

// Report summarizes a check.
type Report struct {
	RunID    string
	Subject  string
	Verifier verifier.Kind
	Strategy StrategyKind
	Seed     uint64

	// Iterations counts scenarios generated and run.
	Iterations int

	Runs         int
	Verified     int
	Faults       int
	Inconclusive int

	CacheHits   int64
	CacheMisses int64

	Elapsed time.Duration

	// Failure is the verification failure that ended the check, if any.
	Failure *VerificationError

	// Fault is the first run fault of the check, if any.
	Fault *Fault
}

// Fault locates a run in which the subject raised an undeclared error or
// panicked.
type Fault struct {
	Iteration int
	Run       int
	Err       error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("run fault at iteration %d, run %d: %v", f.Iteration, f.Run, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Passed reports whether the check verified at least one result and saw
// neither a verification failure nor a run fault. A check whose runs were
// all inconclusive has not passed.
func (r *Report) Passed() bool {
	return r.Failure == nil && r.Fault == nil && r.Verified > 0
}

// Reason explains why the check did not pass. It is empty for a passed
// check.
func (r *Report) Reason() string {
	switch {
	case r.Failure != nil:
		return r.Failure.Error()
	case r.Fault != nil:
		return r.Fault.Error()
	case r.Verified == 0:
		return fmt.Sprintf("no result was verified: %d runs, %d inconclusive", r.Runs, r.Inconclusive)
	}
	return ""
}

// Check tests subject: it generates Iterations scenarios, runs each
// InvocationsPerIteration times against fresh instances and verifies every
// result.
//
// Invalid subjects and options return a ConfigError before anything runs.
// A run fault ends its iteration and the check moves on to the next
// scenario; the first fault is kept in the report and fails the check.
// Inconclusive runs are counted and skipped; a check that verified no
// result at all does not pass. The first unexplainable result stops the
// check with a VerificationError; the report is returned alongside it. A
// failing reference model stops the check with a verifier.ModelError.
func Check(ctx context.Context, subject *Subject, opts ...Option) (*Report, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c, err := newChecker(subject, o)
	if err != nil {
		return nil, err
	}
	return c.check(ctx)
}

// checker holds the state of one Check call.
type checker struct {
	subject  *Subject
	opts     Options
	verifier verifier.Verifier
	logger   *slog.Logger
	observer Observer
	report   *Report
}

func newChecker(subject *Subject, o Options) (*checker, error) {
	if subject == nil || len(subject.Operations) == 0 {
		return nil, &ConfigError{Code: ErrCodeNoOperations, Message: "subject declares no operations"}
	}
	if subject.Factory == nil {
		return nil, &ConfigError{Code: ErrCodeBadParam, Message: "subject " + subject.Name + " has no factory"}
	}
	if err := o.Validate(); err != nil {
		return nil, &ConfigError{Code: ErrCodeBadOptions, Message: "invalid options", Cause: err}
	}
	if err := o.scenarioConfig(subject).Validate(); err != nil {
		return nil, &ConfigError{Code: ErrCodeBadOptions, Message: "invalid scenario shape", Cause: err}
	}

	v, err := verifier.New(verifier.Config{
		Kind:        o.Verifier,
		Model:       subject.model(),
		Factor:      o.Factor,
		PathCost:    o.PathCost,
		CostCounter: subject.CostCounter,
	})
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeBadOptions, Message: "cannot build verifier", Cause: err}
	}

	c := &checker{
		subject:  subject,
		opts:     o,
		verifier: v,
		logger:   o.Logger,
		observer: o.Observer,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	ids := o.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	c.report = &Report{
		RunID:    ids.Generate(),
		Subject:  subject.Name,
		Verifier: o.Verifier,
		Strategy: o.Strategy,
		Seed:     o.Seed,
	}
	return c, nil
}

func (c *checker) check(ctx context.Context) (*Report, error) {
	start := time.Now()
	defer func() {
		c.report.Elapsed = time.Since(start)
		if cached, ok := c.verifier.(*verifier.Cached); ok {
			c.report.CacheHits, c.report.CacheMisses = cached.Stats()
		}
	}()

	c.logger.Info("check started",
		"run_id", c.report.RunID,
		"subject", c.subject.Name,
		"verifier", c.opts.Verifier,
		"strategy", c.opts.Strategy,
		"iterations", c.opts.Iterations,
		"seed", c.opts.Seed,
	)

	gen := scenario.NewGenerator(c.opts.scenarioConfig(c.subject), c.subject.Operations, c.opts.Seed)
	for i := 1; i <= c.opts.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return c.report, fmt.Errorf("check cancelled after %d iterations: %w", c.report.Iterations, err)
		}
		c.observer.IterationStarted(i)
		c.report.Iterations++

		if err := c.iteration(ctx, i, gen.Next()); err != nil {
			if ve, ok := AsVerificationError(err); ok {
				c.report.Failure = ve
				c.logger.Info("check failed",
					"run_id", c.report.RunID,
					"iteration", ve.Iteration,
					"run", ve.Run,
				)
			}
			return c.report, err
		}
	}

	if !c.report.Passed() {
		c.logger.Warn("check did not pass",
			"run_id", c.report.RunID,
			"reason", c.report.Reason(),
			"faults", c.report.Faults,
			"inconclusive", c.report.Inconclusive,
		)
		return c.report, nil
	}
	c.logger.Info("check passed",
		"run_id", c.report.RunID,
		"runs", c.report.Runs,
		"inconclusive", c.report.Inconclusive,
	)
	return c.report, nil
}

// iteration runs one scenario repeatedly. A run fault ends the iteration
// early and is recorded; an inconclusive run is skipped.
func (c *checker) iteration(ctx context.Context, i int, s *ir.Scenario) error {
	eng := c.engine(i)
	total := c.opts.InvocationsPerIteration
	for k := 0; k < total; k++ {
		if ctx.Err() != nil {
			return nil
		}
		r, err := c.run(ctx, eng, s, engine.Attempt{Index: k, Total: total})
		if err != nil {
			if engine.IsRunFault(err) {
				c.logger.Warn("run fault",
					"iteration", i,
					"run", k+1,
					"error", err,
				)
				if c.report.Fault == nil {
					c.report.Fault = &Fault{Iteration: i, Run: k + 1, Err: err}
				}
				return nil
			}
			c.logger.Debug("inconclusive run",
				"iteration", i,
				"run", k+1,
				"error", err,
			)
			continue
		}

		ok, err := c.verify(s, r)
		if err != nil {
			return fmt.Errorf("iteration %d, run %d: %w", i, k+1, err)
		}
		if !ok {
			return c.failure(ctx, eng, i, k+1, s, r)
		}
	}
	return nil
}

// engine builds the engine for iteration i. Strategies are seeded per
// iteration so that every scenario sees different perturbations while the
// whole check stays reproducible.
func (c *checker) engine(i int) *engine.Engine {
	seed := c.opts.Seed + uint64(i)
	var strategy engine.Strategy
	switch c.opts.Strategy {
	case StrategyManaged:
		strategy = engine.NewManaged(engine.RandomPolicies(seed, c.opts.SwitchProbability), c.opts.MaxCalls)
	default:
		stress := engine.NewStress(seed)
		stress.Ceiling = c.opts.StressCeiling
		strategy = stress
	}
	return engine.New(strategy,
		engine.WithTimeout(c.opts.RunTimeout),
		engine.WithLogger(c.logger),
	)
}

// run executes s once and accounts for the outcome.
func (c *checker) run(ctx context.Context, eng *engine.Engine, s *ir.Scenario, a engine.Attempt) (*ir.ExecutionResult, error) {
	start := time.Now()
	r, err := eng.Run(ctx, s, c.subject.Factory, a)
	c.report.Runs++
	switch {
	case err == nil:
		c.observer.RunFinished(RunCompleted, time.Since(start))
	case engine.IsRunFault(err):
		c.report.Faults++
		c.observer.RunFinished(RunFaulted, time.Since(start))
	default:
		c.report.Inconclusive++
		c.observer.RunFinished(RunInconclusive, time.Since(start))
	}
	return r, err
}

func (c *checker) verify(s *ir.Scenario, r *ir.ExecutionResult) (bool, error) {
	start := time.Now()
	ok, err := c.verifier.Verify(s, r)
	if err != nil {
		return false, err
	}
	c.report.Verified++
	c.observer.Verified(ok, time.Since(start))
	return ok, nil
}

// failure builds the VerificationError for an unexplainable result,
// shrinking the scenario first when enabled.
func (c *checker) failure(ctx context.Context, eng *engine.Engine, i, run int, s *ir.Scenario, r *ir.ExecutionResult) error {
	ve := &VerificationError{
		RunID:     c.report.RunID,
		Subject:   c.subject.Name,
		Verifier:  string(c.opts.Verifier),
		Strategy:  string(c.opts.Strategy),
		Iteration: i,
		Run:       run,
		Seed:      c.opts.Seed,
		Scenario:  s,
		Result:    r,
	}
	if c.opts.Minimize {
		ms, mr := c.minimize(ctx, eng, s, r)
		if ms.Size() < s.Size() {
			c.logger.Info("scenario minimized",
				"from", s.Size(),
				"to", ms.Size(),
			)
			ve.Scenario, ve.Result, ve.Minimized = ms, mr, true
		}
	}
	return ve
}

// minimize removes one invocation at a time from s, keeping any smaller
// scenario that still produces an unexplainable result, until no single
// removal reproduces the failure. Parallel invocations are tried first.
func (c *checker) minimize(ctx context.Context, eng *engine.Engine, s *ir.Scenario, r *ir.ExecutionResult) (*ir.Scenario, *ir.ExecutionResult) {
	for {
		shrunk := false
		for _, cand := range shrinks(s) {
			if ctx.Err() != nil {
				return s, r
			}
			if cr, ok := c.reproduce(ctx, eng, cand); ok {
				s, r, shrunk = cand, cr, true
				break
			}
		}
		if !shrunk {
			return s, r
		}
	}
}

// reproduce runs s until a result fails verification. Faults and
// verifier errors count as not reproduced.
func (c *checker) reproduce(ctx context.Context, eng *engine.Engine, s *ir.Scenario) (*ir.ExecutionResult, bool) {
	total := c.opts.InvocationsPerIteration
	for k := 0; k < total; k++ {
		if ctx.Err() != nil {
			return nil, false
		}
		r, err := eng.Run(ctx, s, c.subject.Factory, engine.Attempt{Index: k, Total: total})
		if err != nil {
			if engine.IsRunFault(err) {
				return nil, false
			}
			continue
		}
		ok, err := c.verifier.Verify(s, r)
		if err != nil {
			return nil, false
		}
		if !ok {
			return r, true
		}
	}
	return nil, false
}

// shrinks lists every scenario obtained by removing one invocation from s.
// A parallel thread left empty is dropped unless it is the last one.
func shrinks(s *ir.Scenario) []*ir.Scenario {
	var out []*ir.Scenario
	for t, th := range s.Parallel {
		for j := range th {
			c := clone(s)
			c.Parallel[t] = without(th, j)
			if len(c.Parallel[t]) == 0 && len(c.Parallel) > 1 {
				c.Parallel = append(c.Parallel[:t:t], c.Parallel[t+1:]...)
			}
			out = append(out, c)
		}
	}
	for j := range s.Initial {
		c := clone(s)
		c.Initial = without(s.Initial, j)
		out = append(out, c)
	}
	for j := range s.Final {
		c := clone(s)
		c.Final = without(s.Final, j)
		out = append(out, c)
	}
	return out
}

func clone(s *ir.Scenario) *ir.Scenario {
	c := &ir.Scenario{
		Initial:  s.Initial,
		Parallel: make([][]ir.Invocation, len(s.Parallel)),
		Final:    s.Final,
	}
	copy(c.Parallel, s.Parallel)
	return c
}

func without(invs []ir.Invocation, j int) []ir.Invocation {
	out := make([]ir.Invocation, 0, len(invs)-1)
	out = append(out, invs[:j]...)
	return append(out, invs[j+1:]...)
}
