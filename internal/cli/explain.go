package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/runtime"
)

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <host-id-or-path>",
		Short: "Describe how a host renders: mode, owners, watches and slot items",
		Long: `Render every host without writing, then describe one host. The argument
may be a host id, a host path or any output path the host produces.

Example:
  hostgen explain src/app.ts
  hostgen explain public/css/site.css --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts, cmd.ErrOrStderr(), sessionConfig{})
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := s.rt.Plan(contextOf(cmd)); err != nil {
				return passError("render", err)
			}
			ex, err := s.rt.Explain(args[0])
			if err != nil {
				return passError("explain", err)
			}
			f := formatter(rootOpts, cmd)
			if f.JSON() {
				return f.Success(ex)
			}
			printExplain(f, ex)
			return nil
		},
	}
}

func printExplain(f *OutputFormatter, ex *runtime.HostExplain) {
	w := f.Writer
	cyan.Fprintf(w, "%s\n", ex.ID)
	fmt.Fprintf(w, "  path:    %s\n", ex.Path)
	fmt.Fprintf(w, "  mode:    %s\n", ex.Mode)
	if ex.Kind != "" {
		fmt.Fprintf(w, "  kind:    %s\n", ex.Kind)
	}
	if ex.Format != "" {
		fmt.Fprintf(w, "  format:  %s\n", ex.Format)
	}
	fmt.Fprintf(w, "  owners:  %s\n", strings.Join(ex.Owners, ", "))
	printList(w, "outputs", ex.Outputs)
	printList(w, "observe", ex.Observe)
	printList(w, "tags", ex.Tags)
	printList(w, "depends on", ex.Dependencies)
	printList(w, "used by", ex.Dependents)
	for _, s := range ex.Slots {
		preset := s.Preset
		if preset == "" {
			preset = "custom"
		}
		fmt.Fprintf(w, "  slot %s (%s, %d items)\n", s.Name, preset, len(s.Items))
		for _, it := range s.Items {
			line := fmt.Sprintf("    - %s", it.Kind)
			if it.Key != "" {
				line += " " + it.Key
			}
			line += fmt.Sprintf(" [%s] from %s", it.Stage, it.Source.Module)
			if it.InputID != "" {
				line += " via " + it.InputID
			}
			faint.Fprintln(w, line)
		}
	}
	f.VerboseLog("rendered at %s in %.1fms", ex.RenderedAt.Format("15:04:05.000"), ex.DurationMS)
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(items, ", "))
}
