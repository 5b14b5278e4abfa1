package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/runtime"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	All bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what commit would write without touching disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd.ErrOrStderr(), sessionConfig{})
			if err != nil {
				return err
			}
			defer s.close()

			plan, err := s.rt.Plan(contextOf(cmd))
			if err != nil {
				return passError("plan", err)
			}
			f := formatter(opts.RootOptions, cmd)
			if f.JSON() {
				return f.Success(plan)
			}
			printPlan(f, plan, opts.All)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "also list unchanged paths")

	return cmd
}

var statusMarks = map[runtime.Status]struct {
	mark string
	c    *color.Color
}{
	runtime.StatusAdded:     {"+", green},
	runtime.StatusUpdated:   {"~", yellow},
	runtime.StatusRemoved:   {"-", red},
	runtime.StatusSkipped:   {"!", cyan},
	runtime.StatusUnchanged: {"=", faint},
}

func printPlan(f *OutputFormatter, plan *runtime.Plan, all bool) {
	for _, c := range plan.Cycles {
		f.Warn("%s", c.Message)
	}
	for _, e := range plan.Entries {
		if e.Status == runtime.StatusUnchanged && !e.Missing && !all {
			continue
		}
		m := statusMarks[e.Status]
		line := m.mark + " " + e.Path
		if e.Host != "" && e.Host != e.Path {
			line += " (" + e.Host + ")"
		}
		if e.Missing {
			line += " [missing, will be rewritten]"
		}
		m.c.Fprintln(f.Writer, line)
	}
	fmt.Fprintf(f.Writer, "Plan: %d to add, %d to change, %d to remove, %d unchanged, %d skipped.\n",
		plan.Count(runtime.StatusAdded), plan.Count(runtime.StatusUpdated), plan.Count(runtime.StatusRemoved),
		plan.Count(runtime.StatusUnchanged), plan.Count(runtime.StatusSkipped))
}

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Check bool
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show unified diffs between rendered output and files on disk",
		Long: `Render every host and compare each output with the file currently on
disk. Nothing is written. With --check the command exits 1 when any file
differs, which makes it usable as a CI freshness gate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts.RootOptions, cmd.ErrOrStderr(), sessionConfig{})
			if err != nil {
				return err
			}
			defer s.close()

			diffs, err := s.rt.Diff(contextOf(cmd))
			if err != nil {
				return passError("diff", err)
			}
			f := formatter(opts.RootOptions, cmd)
			if f.JSON() {
				if diffs == nil {
					diffs = []runtime.FileDiff{}
				}
				if err := f.Success(diffs); err != nil {
					return err
				}
			} else {
				printDiffs(f, diffs)
			}
			if opts.Check && len(diffs) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d generated file(s) out of date", len(diffs)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "exit 1 when any generated file is out of date")

	return cmd
}

func printDiffs(f *OutputFormatter, diffs []runtime.FileDiff) {
	if len(diffs) == 0 {
		f.Done("no differences")
		return
	}
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Unified, "\n") {
			switch {
			case line == "":
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
				color.New(color.Bold).Fprint(f.Writer, line)
			case strings.HasPrefix(line, "@@"):
				cyan.Fprint(f.Writer, line)
			case strings.HasPrefix(line, "+"):
				green.Fprint(f.Writer, line)
			case strings.HasPrefix(line, "-"):
				red.Fprint(f.Writer, line)
			default:
				fmt.Fprint(f.Writer, line)
			}
		}
	}
}
