package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hostgen/internal/manifest"
	"github.com/roach88/hostgen/internal/runtime"
	"github.com/roach88/hostgen/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Commit, then re-render affected hosts whenever their inputs change",
		Long: `Run an initial full pass, then watch every file the manifests observe
(content_file and template_file sources, copy sources and explicit observe
entries). A change marks its host and every host downstream of it dirty;
changes arriving within the debounce window are rendered together.

Press Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	hub, err := watch.NewHub(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start file watcher", err)
	}

	s, err := openSession(opts, cmd.ErrOrStderr(), sessionConfig{
		history: true,
		extra:   []runtime.Option{runtime.WithWatchResolver(manifest.Resolver(hub))},
	})
	if err != nil {
		hub.Close(context.Background())
		return err
	}

	ctx, cancel := context.WithCancel(contextOf(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	go hub.Run(ctx)

	f := formatter(opts, cmd)
	if err := s.rt.Start(ctx); err != nil {
		s.close()
		hub.Close(context.Background())
		return passError("start", err)
	}
	if !f.JSON() {
		f.Done("watching %s (debounce %s)", s.cfg.OutDir, s.cfg.Debounce)
	}

	<-ctx.Done()

	// Close the runtime first so no new passes are scheduled, then the hub.
	s.close()
	closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := hub.Close(closeCtx); err != nil {
		s.logger.Error("error closing file watcher", "error", err)
	}
	s.logger.Info("watch stopped")
	return nil
}
