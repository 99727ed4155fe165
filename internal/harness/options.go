package harness

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/scenario"
	"github.com/roach88/interleave/internal/verifier"
)

// StrategyKind selects how the parallel part runs.
type StrategyKind string

const (
	StrategyStress  StrategyKind = "stress"
	StrategyManaged StrategyKind = "managed"
)

// Defaults for Options.
const (
	DefaultIterations              = 200
	DefaultInvocationsPerIteration = 1000
	DefaultThreads                 = 2
	DefaultActorsPerThread         = 5
	DefaultActorsBefore            = 5
	DefaultActorsAfter             = 5
	DefaultSwitchProbability       = 0.5
)

// Options configures a check.
type Options struct {
	// Iterations is the number of scenarios generated.
	Iterations int

	// InvocationsPerIteration is how many times each scenario is run.
	InvocationsPerIteration int

	// Scenario shape.
	Threads         int
	ActorsPerThread int
	ActorsBefore    int
	ActorsAfter     int

	Strategy StrategyKind

	// StressCeiling bounds the busy-wait of the last run of a scenario.
	StressCeiling int

	// SwitchProbability and MaxCalls configure the managed strategy.
	SwitchProbability float64
	MaxCalls          int

	Verifier verifier.Kind

	// Factor and PathCost configure relaxed verifiers.
	Factor   int
	PathCost verifier.PathCostFunc

	// Seed makes generation, stress waits and managed policies
	// reproducible.
	Seed uint64

	// RunTimeout bounds each run. Zero disables it.
	RunTimeout time.Duration

	// Minimize shrinks a failing scenario before reporting it.
	Minimize bool

	Logger   *slog.Logger
	Observer Observer

	// RunIDs names check runs. Defaults to UUIDv7.
	RunIDs engine.RunIDGenerator
}

// Option allows configuration of check parameters.
type Option func(*Options)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Iterations:              DefaultIterations,
		InvocationsPerIteration: DefaultInvocationsPerIteration,
		Threads:                 DefaultThreads,
		ActorsPerThread:         DefaultActorsPerThread,
		ActorsBefore:            DefaultActorsBefore,
		ActorsAfter:             DefaultActorsAfter,
		Strategy:                StrategyStress,
		StressCeiling:           engine.DefaultStressCeiling,
		SwitchProbability:       DefaultSwitchProbability,
		MaxCalls:                engine.DefaultMaxCalls,
		Verifier:                verifier.KindLinearizability,
		Seed:                    1,
		RunTimeout:              engine.DefaultTimeout,
		Minimize:                true,
	}
}

// WithIterations sets the number of generated scenarios.
//
// Default: 200.
func WithIterations(n int) Option {
	return func(o *Options) {
		o.Iterations = n
	}
}

// WithInvocationsPerIteration sets how many times each scenario runs.
//
// Default: 1000.
func WithInvocationsPerIteration(n int) Option {
	return func(o *Options) {
		o.InvocationsPerIteration = n
	}
}

// WithThreads sets the number of parallel threads.
//
// Default: 2.
func WithThreads(n int) Option {
	return func(o *Options) {
		o.Threads = n
	}
}

// WithActors sets the scenario shape: invocations per parallel thread,
// before and after the parallel part.
//
// Default: 5, 5, 5.
func WithActors(perThread, before, after int) Option {
	return func(o *Options) {
		o.ActorsPerThread = perThread
		o.ActorsBefore = before
		o.ActorsAfter = after
	}
}

// WithStrategy selects the execution strategy.
func WithStrategy(s StrategyKind) Option {
	return func(o *Options) {
		o.Strategy = s
	}
}

// WithStressCeiling sets the busy-wait ceiling of the stress strategy.
func WithStressCeiling(n int) Option {
	return func(o *Options) {
		o.StressCeiling = n
	}
}

// WithSwitchProbability sets how often the managed strategy switches
// threads at a scheduling point.
func WithSwitchProbability(p float64) Option {
	return func(o *Options) {
		o.SwitchProbability = p
	}
}

// WithMaxCalls sets the call budget of one managed run.
func WithMaxCalls(n int) Option {
	return func(o *Options) {
		o.MaxCalls = n
	}
}

// WithVerifier selects the correctness condition.
func WithVerifier(k verifier.Kind) Option {
	return func(o *Options) {
		o.Verifier = k
	}
}

// WithRelaxation sets the relaxation factor and path-cost function.
func WithRelaxation(factor int, fn verifier.PathCostFunc) Option {
	return func(o *Options) {
		o.Factor = factor
		o.PathCost = fn
	}
}

// WithSeed sets the seed of every random choice.
func WithSeed(seed uint64) Option {
	return func(o *Options) {
		o.Seed = seed
	}
}

// WithRunTimeout sets the wall-clock budget of one run.
func WithRunTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.RunTimeout = d
	}
}

// WithMinimize enables or disables shrinking of failing scenarios.
func WithMinimize(enabled bool) Option {
	return func(o *Options) {
		o.Minimize = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithObserver registers an observer of check progress.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// WithRunIDGenerator sets the generator of run IDs.
func WithRunIDGenerator(g engine.RunIDGenerator) Option {
	return func(o *Options) {
		o.RunIDs = g
	}
}

// WithOptions replaces every option at once, for example with options
// loaded from a configuration file. A nil logger, observer or run ID
// generator in opts keeps the current one.
func WithOptions(opts Options) Option {
	return func(o *Options) {
		logger, observer, ids := o.Logger, o.Observer, o.RunIDs
		*o = opts
		if o.Logger == nil {
			o.Logger = logger
		}
		if o.Observer == nil {
			o.Observer = observer
		}
		if o.RunIDs == nil {
			o.RunIDs = ids
		}
	}
}

// scenarioConfig derives the generator configuration.
func (o Options) scenarioConfig(s *Subject) scenario.Config {
	return scenario.Config{
		Threads:           o.Threads,
		ActorsPerThread:   o.ActorsPerThread,
		ActorsBefore:      o.ActorsBefore,
		ActorsAfter:       o.ActorsAfter,
		NonParallelGroups: s.NonParallelGroups,
	}
}

// Validate checks option bounds. The scenario shape is checked by the
// generator configuration.
func (o Options) Validate() error {
	var errs []error
	if o.Iterations < 1 {
		errs = append(errs, fmt.Errorf("iterations must be at least 1, got %d", o.Iterations))
	}
	if o.InvocationsPerIteration < 1 {
		errs = append(errs, fmt.Errorf("invocations per iteration must be at least 1, got %d", o.InvocationsPerIteration))
	}
	switch o.Strategy {
	case StrategyStress, StrategyManaged:
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", o.Strategy))
	}
	if o.StressCeiling < 0 {
		errs = append(errs, fmt.Errorf("stress ceiling must not be negative, got %d", o.StressCeiling))
	}
	if o.SwitchProbability < 0 || o.SwitchProbability > 1 {
		errs = append(errs, fmt.Errorf("switch probability must be in [0, 1], got %v", o.SwitchProbability))
	}
	if o.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run timeout must not be negative, got %v", o.RunTimeout))
	}
	if _, err := verifier.ParseKind(string(o.Verifier)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
