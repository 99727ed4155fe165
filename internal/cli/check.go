package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/config"
	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/engine"
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/metrics"
	"github.com/roach88/interleave/internal/store"
	"github.com/roach88/interleave/internal/verifier"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	ConfigFile      string
	Database        string
	MetricsTextfile string
	HistoryOut      string

	// Overrides applied on top of the subject defaults and the config file.
	Iterations  int
	Invocations int
	Threads     int
	Strategy    string
	Verifier    string
	Factor      int
	PathCost    string
	Seed        uint64
	RunTimeout  time.Duration
	NoMinimize  bool

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// CheckSummary is the JSON payload of the check command.
type CheckSummary struct {
	RunID         string          `json:"run_id"`
	Subject       string          `json:"subject"`
	Verifier      string          `json:"verifier"`
	Strategy      string          `json:"strategy"`
	Seed          uint64          `json:"seed"`
	Passed        bool            `json:"passed"`
	Iterations    int             `json:"iterations"`
	Runs          int             `json:"runs"`
	Verified      int             `json:"verified"`
	Faults        int             `json:"faults"`
	Inconclusive  int             `json:"inconclusive"`
	CacheHits     int64           `json:"cache_hits"`
	CacheMisses   int64           `json:"cache_misses"`
	ElapsedMillis int64           `json:"elapsed_ms"`
	Reason        string          `json:"reason,omitempty"`
	Failure       *FailureSummary `json:"failure,omitempty"`
}

// FailureSummary describes the failing run of a check.
type FailureSummary struct {
	Iteration int    `json:"iteration"`
	Run       int    `json:"run"`
	Minimized bool   `json:"minimized"`
	Details   string `json:"details"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <subject>",
		Short: "Check a subject against its correctness condition",
		Long: `Check a registered subject for concurrency bugs.

The subject starts from the options registered with it. A CUE config file,
then individual flags, override them. The check generates scenarios, runs
each one repeatedly in parallel and verifies every result. The first result
the verifier cannot explain fails the check; the scenario is minimized and
reported.

A check also fails when a run raises an undeclared error or panics, and
when no result could be verified because every run was inconclusive.

Exit codes:
  0 - check passed
  1 - a result violated the correctness condition, a run faulted, or
      nothing was verified
  2 - command error (unknown subject, bad config, database error)

Examples:
  interleave check atomic-counter
  interleave check racy-counter --strategy managed --seed 7
  interleave check k-relaxed-stack --config ./check.cue --db ./failures.db
  interleave check racy-counter --history-out ./failure.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ConfigFile, "config", "", "CUE file with check options")
	f.StringVar(&opts.Database, "db", "", "SQLite database archiving the check")
	f.StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	f.StringVar(&opts.HistoryOut, "history-out", "", "write the failing history to this YAML file")
	f.IntVar(&opts.Iterations, "iterations", 0, "number of generated scenarios")
	f.IntVar(&opts.Invocations, "invocations", 0, "runs per scenario")
	f.IntVar(&opts.Threads, "threads", 0, "parallel threads per scenario")
	f.StringVar(&opts.Strategy, "strategy", "", "scheduling strategy (stress|managed)")
	f.StringVar(&opts.Verifier, "verifier", "", "correctness condition")
	f.IntVar(&opts.Factor, "factor", 0, "relaxation factor")
	f.StringVar(&opts.PathCost, "path-cost", "", "path cost function of the quantitative verifier")
	f.Uint64Var(&opts.Seed, "seed", 0, "seed for generation and scheduling")
	f.DurationVar(&opts.RunTimeout, "run-timeout", 0, "wall-clock budget of one run")
	f.BoolVar(&opts.NoMinimize, "no-minimize", false, "report the failing scenario as generated")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *CheckOptions, name string) error {
	logger := newLogger(cmd, opts.RootOptions)
	formatter := newFormatter(cmd, opts.RootOptions)

	entry, err := demo.Lookup(name)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot check", err)
	}
	checkOpts, err := resolveCheckOptions(cmd, formatter, opts, entry)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid check options", err).WithCode(ErrCodeInvalidOptions)
	}
	subject := entry.Subject()

	ctx, stop := signalContext(cmd)
	defer stop()

	rec := metrics.New(subject.Name, string(checkOpts.Verifier))
	checkArgs := []harness.Option{
		harness.WithOptions(checkOpts),
		harness.WithLogger(logger),
		harness.WithObserver(rec),
	}
	if opts.RunIDs != nil {
		checkArgs = append(checkArgs, harness.WithRunIDGenerator(opts.RunIDs))
	}

	rep, err := harness.Check(ctx, subject, checkArgs...)
	if rep == nil {
		return WrapExitError(ExitCommandError, "check could not start", err)
	}
	ve, failed := harness.AsVerificationError(err)
	if err != nil && !failed {
		return WrapExitError(ExitCommandError, "check aborted", err)
	}

	if opts.MetricsTextfile != "" {
		rec.ObserveReport(rep)
		if err := rec.WriteTextfile(opts.MetricsTextfile); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		logger.Debug("metrics written", "path", opts.MetricsTextfile)
	}

	if opts.Database != "" {
		if err := archiveCheck(ctx, opts.Database, rep, checkOpts); err != nil {
			return WrapExitError(ExitCommandError, "failed to archive check", err)
		}
		logger.Debug("check archived", "db", opts.Database, "run_id", rep.RunID)
	}

	if failed && opts.HistoryOut != "" {
		if err := writeFailureHistory(ve, checkOpts, opts.HistoryOut); err != nil {
			return WrapExitError(ExitCommandError, "failed to write history", err)
		}
		logger.Info("history written", "path", opts.HistoryOut)
	}

	// written last so that a JSON report is never followed by an error
	if err := writeReport(cmd, formatter, rep); err != nil {
		return WrapExitError(ExitCommandError, "failed to write report", err)
	}

	switch {
	case failed:
		return NewExitError(ExitFailure, ve.Error())
	case !rep.Passed():
		return NewExitError(ExitFailure, rep.Subject+": "+rep.Reason())
	}
	return nil
}

// resolveCheckOptions layers the subject's registered options, the config
// file and the flags set on the command line, in that order.
func resolveCheckOptions(cmd *cobra.Command, formatter *OutputFormatter, opts *CheckOptions, entry demo.Entry) (harness.Options, error) {
	o := harness.DefaultOptions()
	for _, opt := range entry.Options {
		opt(&o)
	}
	formatter.VerboseLog("%s: %d registered options", entry.Name, len(entry.Options))

	if opts.ConfigFile != "" {
		f, err := config.ParseFile(opts.ConfigFile)
		if err != nil {
			return harness.Options{}, err
		}
		if err := f.Apply(&o); err != nil {
			return harness.Options{}, err
		}
		formatter.VerboseLog("applied config %s", opts.ConfigFile)
	}

	flags := cmd.Flags()
	if flags.Changed("iterations") {
		o.Iterations = opts.Iterations
	}
	if flags.Changed("invocations") {
		o.InvocationsPerIteration = opts.Invocations
	}
	if flags.Changed("threads") {
		o.Threads = opts.Threads
	}
	if flags.Changed("strategy") {
		o.Strategy = harness.StrategyKind(opts.Strategy)
	}
	if flags.Changed("verifier") {
		k, err := verifier.ParseKind(opts.Verifier)
		if err != nil {
			return harness.Options{}, err
		}
		o.Verifier = k
	}
	if flags.Changed("factor") {
		o.Factor = opts.Factor
	}
	if flags.Changed("path-cost") {
		fn, err := verifier.ParsePathCostFunc(opts.PathCost)
		if err != nil {
			return harness.Options{}, err
		}
		o.PathCost = fn
	}
	if flags.Changed("seed") {
		o.Seed = opts.Seed
	}
	if flags.Changed("run-timeout") {
		o.RunTimeout = opts.RunTimeout
	}
	if opts.NoMinimize {
		o.Minimize = false
	}

	if err := o.Validate(); err != nil {
		return harness.Options{}, err
	}
	formatter.VerboseLog("checking %s: %d iterations of %d runs on %d threads, %s strategy, %s verifier, seed %d",
		entry.Name, o.Iterations, o.InvocationsPerIteration, o.Threads, o.Strategy, o.Verifier, o.Seed)
	return o, nil
}

func writeReport(cmd *cobra.Command, formatter *OutputFormatter, rep *harness.Report) error {
	if formatter.Format != "json" {
		return harness.RenderReport(cmd.OutOrStdout(), rep)
	}

	status := "ok"
	if !rep.Passed() {
		status = "failed"
	}
	return formatter.Result(status, rep.RunID, summarize(rep))
}

func summarize(rep *harness.Report) CheckSummary {
	s := CheckSummary{
		RunID:         rep.RunID,
		Subject:       rep.Subject,
		Verifier:      string(rep.Verifier),
		Strategy:      string(rep.Strategy),
		Seed:          rep.Seed,
		Passed:        rep.Passed(),
		Iterations:    rep.Iterations,
		Runs:          rep.Runs,
		Verified:      rep.Verified,
		Faults:        rep.Faults,
		Inconclusive:  rep.Inconclusive,
		CacheHits:     rep.CacheHits,
		CacheMisses:   rep.CacheMisses,
		ElapsedMillis: rep.Elapsed.Milliseconds(),
		Reason:        rep.Reason(),
	}
	if f := rep.Failure; f != nil {
		s.Failure = &FailureSummary{
			Iteration: f.Iteration,
			Run:       f.Run,
			Minimized: f.Minimized,
			Details:   f.Details(),
		}
	}
	return s
}

func archiveCheck(ctx context.Context, path string, rep *harness.Report, o harness.Options) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	// a cancelled check is still worth archiving
	ctx = context.WithoutCancel(ctx)
	return st.SaveCheck(ctx, rep, o, store.CollectHost(ctx))
}

func writeFailureHistory(ve *harness.VerificationError, o harness.Options, path string) error {
	h, err := ve.History()
	if err != nil {
		return err
	}
	h.Factor = o.Factor
	if o.Verifier == verifier.KindQuantitativeRelaxation {
		h.PathCost = o.PathCost.String()
	}
	return h.WriteFile(path)
}

// newLogger configures logging based on the verbose flag. Logs go to the
// command's error stream so they never mix with JSON output.
func newLogger(cmd *cobra.Command, rootOpts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if rootOpts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}

// signalContext derives the command context, cancelled on SIGINT or
// SIGTERM. Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
}

// isNotFound reports whether err means a missing archived check.
func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
