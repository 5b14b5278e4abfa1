package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/runtime"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Report bool
	Reason string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Commit with statistics, an optional report and run history",
		Long: `Render and persist like commit, stamping the pass with a run id and
collecting per-host render cost. With --report (or report = true in
hostgen.toml) a JSON report is written; with history_db configured the run
is appended to the history database.

Example:
  hostgen run --report
  hostgen run --reason "pre-release" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd.ErrOrStderr(), sessionConfig{report: opts.Report, history: true})
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.rt.Run(contextOf(cmd), runtime.Event{Reason: opts.Reason, Report: opts.Report})
			if err != nil {
				return passError("run", err)
			}
			return printResult(formatter(opts.RootOptions, cmd), "run "+res.RunID, res)
		},
	}

	cmd.Flags().BoolVar(&opts.Report, "report", false, "write the JSON run report")
	cmd.Flags().StringVar(&opts.Reason, "reason", "cli", "reason recorded with the run")

	return cmd
}
