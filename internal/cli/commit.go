package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/runtime"
	"github.com/roach88/hostgen/internal/writer"
)

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Render every host and write what changed",
		Long: `Render every declared host, compare with the persisted state and
atomically write added and updated files. With clean enabled, files
generated by an earlier run that no host produces any more are removed.

Example:
  hostgen commit
  hostgen commit -m hosts.yaml -o gen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd.ErrOrStderr(), sessionConfig{})
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.rt.Commit(contextOf(cmd))
			if err != nil {
				return passError("commit", err)
			}
			return printResult(formatter(rootOpts, cmd), "committed", res)
		},
	}
}

// resultView is the JSON shape of a persisted pass.
type resultView struct {
	RunID   string            `json:"runId,omitempty"`
	Reason  string            `json:"reason"`
	Written []string          `json:"written"`
	Skipped []string          `json:"skipped"`
	Removed []string          `json:"removed"`
	Hosts   []writer.HostStat `json:"hosts,omitempty"`
	Timings writer.Timings    `json:"timings"`
	Cycles  []string          `json:"cycles,omitempty"`
	Report  *writer.Report    `json:"report,omitempty"`
}

func newResultView(res *runtime.RunResult) resultView {
	v := resultView{
		RunID:   res.RunID,
		Reason:  res.Reason,
		Written: orEmpty(res.Written),
		Skipped: orEmpty(res.Skipped),
		Removed: orEmpty(res.Removed),
		Hosts:   res.Hosts,
		Timings: res.Timings,
		Report:  res.Report,
	}
	if res.Plan != nil {
		for _, c := range res.Plan.Cycles {
			v.Cycles = append(v.Cycles, c.Message)
		}
	}
	return v
}

func printResult(f *OutputFormatter, verb string, res *runtime.RunResult) error {
	v := newResultView(res)
	if f.JSON() {
		return f.Success(v)
	}
	for _, c := range v.Cycles {
		f.Warn("%s", c)
	}
	if f.Verbose {
		for _, p := range v.Written {
			green.Fprintf(f.Writer, "  + %s\n", p)
		}
		for _, p := range v.Skipped {
			cyan.Fprintf(f.Writer, "  ! %s\n", p)
		}
		for _, p := range v.Removed {
			red.Fprintf(f.Writer, "  - %s\n", p)
		}
	}
	f.Done("%s: %d written, %d skipped, %d removed", verb, len(v.Written), len(v.Skipped), len(v.Removed))
	if v.RunID != "" {
		f.VerboseLog("run %s took %.1fms", v.RunID, v.Timings.TotalMS)
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
