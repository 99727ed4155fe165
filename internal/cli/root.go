package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the interleave CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "interleave",
		Short: "interleave - concurrency checker for Go data structures",
		Long: `Check concurrent data structures against a sequential reference model.

interleave generates random scenarios of operations, runs them in parallel
under a stress or managed scheduling strategy, and verifies every observed
result against a correctness condition such as linearizability.`,
		// Execute reports errors in the selected format.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewFailuresCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// Execute runs root and returns the process exit code.
//
// A failed check or replay has already written its result, so only its
// message goes to the diagnostic stream. Every other error is written with
// OutputFormatter.Error: a JSON error envelope on stdout with --format
// json, an "Error [code]" line on stderr otherwise.
func Execute(root *cobra.Command) int {
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	format, _ := root.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	verbose, _ := root.PersistentFlags().GetBool("verbose")
	f := newFormatter(root, &RootOptions{Format: format, Verbose: verbose})

	code := GetExitCode(err)
	if code == ExitFailure {
		fmt.Fprintln(f.GetErrWriter(), "Error:", err)
		return code
	}
	if werr := f.Error(errorCode(err), err.Error(), errorDetails(err)); werr != nil {
		fmt.Fprintln(f.GetErrWriter(), "Error:", err)
	}
	return code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
