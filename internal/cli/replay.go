package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/store"
	"github.com/roach88/interleave/internal/verifier"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	CheckID  string

	// Verifier and Factor override the condition recorded in the history.
	Verifier string
	Factor   int
}

// ReplayResult is the verdict on a recorded history.
type ReplayResult struct {
	Source    string `json:"source"`
	Subject   string `json:"subject"`
	Verifier  string `json:"verifier"`
	Factor    int    `json:"factor,omitempty"`
	Explained bool   `json:"explained"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [history.yaml]",
		Short: "Verify a recorded history offline",
		Long: `Verify a recorded history against its subject's reference model,
without running the subject.

The history comes from a YAML file written by 'check --history-out', or from
a failed check archived in a database. The correctness condition recorded in
the history is used unless --verifier overrides it, which shows whether a
failure is explained by a weaker condition.

Exit codes:
  0 - the history is explained by the correctness condition
  1 - the history violates the correctness condition
  2 - command error (unreadable history, unknown subject, etc.)

Examples:
  interleave replay ./failure.yaml
  interleave replay ./failure.yaml --verifier quasi --factor 3
  interleave replay --db ./failures.db --check 019a3f2e-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database with archived checks")
	cmd.Flags().StringVar(&opts.CheckID, "check", "", "archived check to replay (requires --db)")
	cmd.Flags().StringVar(&opts.Verifier, "verifier", "", "override the recorded correctness condition")
	cmd.Flags().IntVar(&opts.Factor, "factor", 0, "override the recorded relaxation factor")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, args []string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	var (
		h      *harness.History
		source string
		err    error
	)
	switch {
	case len(args) == 1 && opts.CheckID == "":
		source = args[0]
		h, err = harness.LoadHistory(source)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load history", err)
		}
	case len(args) == 0 && opts.CheckID != "" && opts.Database != "":
		source = opts.Database + "#" + opts.CheckID
		h, err = archivedHistory(commandContext(cmd), opts.Database, opts.CheckID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load archived check", err)
		}
	default:
		return NewExitError(ExitCommandError, "replay needs a history file, or --db together with --check")
	}
	formatter.VerboseLog("loaded %s history from %s", h.Subject, source)

	if opts.Verifier != "" {
		k, err := verifier.ParseKind(opts.Verifier)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid verifier", err)
		}
		h.Verifier = string(k)
		formatter.VerboseLog("verifier overridden: %s", k)
	}
	if opts.Factor > 0 {
		h.Factor = opts.Factor
		formatter.VerboseLog("factor overridden: %d", opts.Factor)
	}

	subject, err := demo.Resolve(h.Subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "history names an unknown subject", err)
	}
	ok, err := harness.VerifyHistory(subject, h)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to verify history", err)
	}

	result := ReplayResult{
		Source:    source,
		Subject:   h.Subject,
		Verifier:  h.Verifier,
		Factor:    h.Factor,
		Explained: ok,
	}
	if result.Verifier == "" {
		result.Verifier = string(verifier.KindLinearizability)
	}

	status := "ok"
	if !ok {
		status = "failed"
	}
	if opts.Format == "json" {
		if err := formatter.Result(status, "", result); err != nil {
			return err
		}
	} else {
		verdict := "explained by"
		if !ok {
			verdict = "VIOLATES"
		}
		condition := result.Verifier
		if result.Factor > 0 {
			condition = fmt.Sprintf("%s (factor %d)", condition, result.Factor)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s %s\n", source, result.Subject, verdict, condition)
	}

	if !ok {
		return NewExitError(ExitFailure, fmt.Sprintf("history violates %s", result.Verifier))
	}
	return nil
}

// archivedHistory loads a failed check from the database at path and
// converts its failure into a history.
func archivedHistory(ctx context.Context, path, id string) (*harness.History, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	c, err := st.LoadCheck(ctx, id)
	if err != nil {
		return nil, err
	}
	subject, err := demo.Resolve(c.Subject)
	if err != nil {
		return nil, err
	}
	return c.History(subject)
}
