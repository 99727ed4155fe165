package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/harness"
)

// SubjectInfo describes one registered subject.
type SubjectInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Verifier    string `json:"verifier"`
	Strategy    string `json:"strategy"`
	Factor      int    `json:"factor,omitempty"`
	Broken      bool   `json:"broken"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered subjects",
		Long: `List the subjects that can be checked, with the correctness condition
each one is checked against by default. Broken subjects are expected to
fail their check.

Examples:
  interleave list
  interleave list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts)
		},
	}
	return cmd
}

func runList(cmd *cobra.Command, rootOpts *RootOptions) error {
	infos := subjectInfos()

	formatter := newFormatter(cmd, rootOpts)
	if rootOpts.Format == "json" {
		return formatter.Success(infos)
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERIFIER\tSTRATEGY\tDESCRIPTION")
	for _, info := range infos {
		desc := info.Description
		if info.Broken {
			desc += " (broken)"
		}
		verifierName := info.Verifier
		if info.Factor > 0 {
			verifierName = fmt.Sprintf("%s/%d", verifierName, info.Factor)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, verifierName, info.Strategy, desc)
	}
	if err := tw.Flush(); err != nil {
		return WrapExitError(ExitCommandError, "failed to render subjects", err)
	}
	return formatter.Success(strings.TrimSuffix(b.String(), "\n"))
}

func subjectInfos() []SubjectInfo {
	entries := demo.Entries()
	infos := make([]SubjectInfo, len(entries))
	for i, e := range entries {
		o := harness.DefaultOptions()
		for _, opt := range e.Options {
			opt(&o)
		}
		infos[i] = SubjectInfo{
			Name:        e.Name,
			Description: e.Description,
			Verifier:    string(o.Verifier),
			Strategy:    string(o.Strategy),
			Factor:      o.Factor,
			Broken:      e.Broken,
		}
	}
	return infos
}
