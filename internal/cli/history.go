package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Path     string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, the files of one run, or the runs that touched a path",
		Long: `Read the run history database written by "hostgen run" and "hostgen watch"
when history_db is configured.

Example:
  hostgen history
  hostgen history 0192f5c4-...
  hostgen history --path src/app.ts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history database (default history_db from config)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "list the runs that touched this output path")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	dbPath := opts.Database
	if dbPath == "" {
		cfg, err := loadConfig(opts.RootOptions)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no history database (set history_db in hostgen.toml or pass --db)")
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	ctx := contextOf(cmd)
	f := formatter(opts.RootOptions, cmd)

	switch {
	case len(args) == 1:
		run, err := st.GetRun(ctx, args[0])
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown run %q", args[0]))
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read run", err)
		}
		files, err := st.RunFiles(ctx, run.ID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read run files", err)
		}
		if f.JSON() {
			return f.Success(map[string]any{"run": run, "files": files})
		}
		printRuns(f, []store.Run{run})
		printFiles(f, files, false)
		return nil

	case opts.Path != "":
		files, err := st.PathHistory(ctx, opts.Path)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read path history", err)
		}
		if f.JSON() {
			return f.Success(files)
		}
		printFiles(f, files, true)
		return nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list runs", err)
		}
		if f.JSON() {
			return f.Success(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(f.Writer, "no runs recorded")
			return nil
		}
		printRuns(f, runs)
		return nil
	}
}

func printRuns(f *OutputFormatter, runs []store.Run) {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tREASON\tWRITTEN\tSKIPPED\tREMOVED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.1fms\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Reason, r.Written, r.Skipped, r.Removed, r.DurationMS)
	}
	tw.Flush()
}

func printFiles(f *OutputFormatter, files []store.RunFile, withRun bool) {
	for _, file := range files {
		line := file.Action + " " + file.Path
		if withRun {
			line = file.RunID + " " + line
		}
		switch file.Action {
		case "added", "written":
			green.Fprintln(f.Writer, line)
		case "updated":
			yellow.Fprintln(f.Writer, line)
		case "removed":
			red.Fprintln(f.Writer, line)
		default:
			cyan.Fprintln(f.Writer, line)
		}
	}
}
