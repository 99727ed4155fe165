package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/harness"
	"github.com/roach88/interleave/internal/store"
)

// FailuresOptions holds flags shared by the failures subcommands.
type FailuresOptions struct {
	*RootOptions
	Database string

	// list
	Subject string
	All     bool
	Limit   int

	// export
	Output string
}

// CheckRecord is the JSON form of an archived check.
type CheckRecord struct {
	ID           string          `json:"id"`
	Subject      string          `json:"subject"`
	Verifier     string          `json:"verifier"`
	Strategy     string          `json:"strategy"`
	Seed         uint64          `json:"seed"`
	Passed       bool            `json:"passed"`
	Iterations   int             `json:"iterations"`
	Runs         int             `json:"runs"`
	Faults       int             `json:"faults"`
	Inconclusive int             `json:"inconclusive"`
	Host         string          `json:"host,omitempty"`
	Settings     *store.Settings `json:"settings,omitempty"`
	Failure      *FailureSummary `json:"failure,omitempty"`
}

// NewFailuresCommand creates the failures command and its subcommands.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FailuresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect checks archived in a database",
		Long: `Inspect checks archived with 'check --db'.

Examples:
  interleave failures list --db ./failures.db
  interleave failures list --db ./failures.db --subject racy-counter --all
  interleave failures show --db ./failures.db 019a3f2e-...
  interleave failures export --db ./failures.db 019a3f2e-... -o failure.yaml`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List archived checks, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailuresList(cmd, opts)
		},
	}
	list.Flags().StringVar(&opts.Subject, "subject", "", "only checks of this subject")
	list.Flags().BoolVar(&opts.All, "all", false, "include passed checks")
	list.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of checks (0 = no limit)")

	show := &cobra.Command{
		Use:           "show <check-id>",
		Short:         "Show an archived check and its failure",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailuresShow(cmd, opts, args[0])
		},
	}

	export := &cobra.Command{
		Use:           "export <check-id>",
		Short:         "Write the failure of an archived check as a history file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFailuresExport(cmd, opts, args[0])
		},
	}
	export.Flags().StringVarP(&opts.Output, "output", "o", "", "history file to write (required)")
	_ = export.MarkFlagRequired("output")

	cmd.AddCommand(list, show, export)
	return cmd
}

func openStore(opts *FailuresOptions) (*store.Store, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runFailuresList(cmd *cobra.Command, opts *FailuresOptions) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	checks, err := st.ListChecks(commandContext(cmd), store.ListFilter{
		Subject:    opts.Subject,
		FailedOnly: !opts.All,
		Limit:      opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list checks", err)
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		records := make([]CheckRecord, len(checks))
		for i := range checks {
			records[i] = checkRecord(&checks[i])
		}
		return formatter.Success(records)
	}

	if len(checks) == 0 {
		return formatter.Success("no archived checks")
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tVERIFIER\tSTATUS\tRUNS")
	for _, c := range checks {
		status := "passed"
		if !c.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", c.ID, c.Subject, c.Verifier, status, c.Runs)
	}
	if err := tw.Flush(); err != nil {
		return WrapExitError(ExitCommandError, "failed to render checks", err)
	}
	return formatter.Success(strings.TrimSuffix(b.String(), "\n"))
}

func runFailuresShow(cmd *cobra.Command, opts *FailuresOptions, id string) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.LoadCheck(commandContext(cmd), id)
	if isNotFound(err) {
		return WrapExitError(ExitCommandError, "no such check", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load check", err)
	}

	record := checkRecord(c)
	record.Settings = &c.Settings
	if c.Failure != nil {
		details, err := failureDetails(c)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render failure", err)
		}
		record.Failure = &FailureSummary{
			Iteration: c.Failure.Iteration,
			Run:       c.Failure.Run,
			Minimized: c.Failure.Minimized,
			Details:   details,
		}
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return formatter.Success(record)
	}

	var b strings.Builder
	status := "passed"
	if !record.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "%s %s %s\n", record.ID, record.Subject, status)
	fmt.Fprintf(&b, "verifier %s, strategy %s, seed %d\n", record.Verifier, record.Strategy, record.Seed)
	fmt.Fprintf(&b, "%d iterations, %d runs, %d faults, %d inconclusive\n",
		record.Iterations, record.Runs, record.Faults, record.Inconclusive)
	if record.Host != "" {
		fmt.Fprintf(&b, "host %s\n", record.Host)
	}
	if f := record.Failure; f != nil {
		fmt.Fprintf(&b, "\nfailed at iteration %d, run %d", f.Iteration, f.Run)
		if f.Minimized {
			b.WriteString(" (scenario minimized)")
		}
		fmt.Fprintf(&b, "\n%s", f.Details)
	}
	return formatter.Success(strings.TrimSuffix(b.String(), "\n"))
}

func runFailuresExport(cmd *cobra.Command, opts *FailuresOptions, id string) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.LoadCheck(commandContext(cmd), id)
	if isNotFound(err) {
		return WrapExitError(ExitCommandError, "no such check", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load check", err)
	}
	if c.Failure == nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("check %s has no archived failure; nothing to export", id))
	}
	subject, err := demo.Resolve(c.Subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "archived check names an unknown subject", err)
	}
	h, err := c.History(subject)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to convert failure", err)
	}
	if err := h.WriteFile(opts.Output); err != nil {
		return WrapExitError(ExitCommandError, "failed to write history", err)
	}

	formatter := newFormatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		return formatter.Success(map[string]string{"check_id": id, "path": opts.Output})
	}
	return formatter.Success(fmt.Sprintf("wrote %s", opts.Output))
}

func checkRecord(c *store.Check) CheckRecord {
	r := CheckRecord{
		ID:           c.ID,
		Subject:      c.Subject,
		Verifier:     c.Verifier,
		Strategy:     c.Strategy,
		Seed:         c.Seed,
		Passed:       c.Passed,
		Iterations:   c.Iterations,
		Runs:         c.Runs,
		Faults:       c.Faults,
		Inconclusive: c.Inconclusive,
	}
	if c.Host.Hostname != "" || c.Host.CPUModel != "" {
		r.Host = fmt.Sprintf("%s %s/%s, %s, %d CPUs", c.Host.Hostname, c.Host.OS, c.Host.KernelArch, c.Host.CPUModel, c.Host.LogicalCPUs)
	}
	return r
}

// failureDetails renders the archived failure of c against its subject.
func failureDetails(c *store.Check) (string, error) {
	subject, err := demo.Resolve(c.Subject)
	if err != nil {
		return "", err
	}
	s, r, err := c.Failure.Resolve(subject)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := harness.RenderFailure(&b, s, r); err != nil {
		return "", err
	}
	return b.String(), nil
}
