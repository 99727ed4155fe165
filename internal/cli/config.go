package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/interleave/internal/config"
	"github.com/roach88/interleave/internal/demo"
	"github.com/roach88/interleave/internal/harness"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	ConfigFile string
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config [subject]",
		Short: "Print effective check options as CUE",
		Long: `Print the options a check would run with, as a CUE file that
'check --config' accepts.

Without a subject the built-in defaults are printed. With a subject, its
registered options are applied first. A --config file is validated and
layered on top.

Examples:
  interleave config > check.cue
  interleave config k-relaxed-stack
  interleave config racy-counter --config ./check.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "CUE file to validate and apply")

	return cmd
}

func runConfig(cmd *cobra.Command, opts *ConfigOptions, args []string) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	o := harness.DefaultOptions()
	if len(args) == 1 {
		entry, err := demo.Lookup(args[0])
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot print options", err)
		}
		for _, opt := range entry.Options {
			opt(&o)
		}
		formatter.VerboseLog("%s: %d registered options", entry.Name, len(entry.Options))
	}
	if opts.ConfigFile != "" {
		f, err := config.ParseFile(opts.ConfigFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		if err := f.Apply(&o); err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
		formatter.VerboseLog("applied config %s", opts.ConfigFile)
	}
	if err := o.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid options", err).WithCode(ErrCodeInvalidOptions)
	}

	if opts.Format == "json" {
		return formatter.Success(config.FileOf(o))
	}
	src, err := config.Format(o)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to format options", err)
	}
	_, err = cmd.OutOrStdout().Write(src)
	return err
}
