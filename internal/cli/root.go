package cli

import (
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/runtime"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Config    string
	Manifests []string
	OutDir    string
	NoColor   bool

	// runtimeOpts are appended to every runtime the CLI builds (for testing).
	runtimeOpts []runtime.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hostgen CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hostgen",
		Short: "hostgen - host-centric incremental code generation",
		Long: `Generate files from declared hosts.

Hosts are declared in YAML or CUE manifests. Each run renders every host,
compares the result with the last persisted state and atomically writes
only what changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.NoColor || opts.Format == "json" {
				color.NoColor = true
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (default ./hostgen.toml when present)")
	cmd.PersistentFlags().StringSliceVarP(&opts.Manifests, "manifest", "m", nil, "manifest file, repeatable (overrides config manifests)")
	cmd.PersistentFlags().StringVarP(&opts.OutDir, "out", "o", "", "output directory (overrides config out_dir)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
