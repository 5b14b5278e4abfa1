package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/hostgen/internal/config"
	"github.com/roach88/hostgen/internal/manifest"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/runtime"
	"github.com/roach88/hostgen/internal/store"
)

// session is the registry and runtime built from config and manifests for
// one command invocation.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	reg     *registry.Registry
	rt      *runtime.Runtime
	history *store.Store
}

type sessionConfig struct {
	report  bool
	history bool
	extra   []runtime.Option
}

// loadConfig reads --config, falling back to ./hostgen.toml and then to
// defaults rooted at the working directory. Flag overrides are applied last.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.Config
	if path == "" {
		if _, err := os.Stat(config.DefaultFile); err == nil {
			path = config.DefaultFile
		}
	}

	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, err
		}
		cfg = config.Default(wd)
	}

	if len(opts.Manifests) > 0 {
		cfg.Manifests = cfg.Manifests[:0]
		for _, m := range opts.Manifests {
			abs, err := filepath.Abs(m)
			if err != nil {
				return config.Config{}, err
			}
			cfg.Manifests = append(cfg.Manifests, abs)
		}
	}
	if opts.OutDir != "" {
		abs, err := filepath.Abs(opts.OutDir)
		if err != nil {
			return config.Config{}, err
		}
		cfg.OutDir = abs
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openSession loads config and manifests, registers every host and builds
// the runtime. The caller must call close.
func openSession(opts *RootOptions, stderr io.Writer, sc sessionConfig) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := newLogger(opts, cfg, stderr)

	if len(cfg.Manifests) == 0 {
		return nil, NewExitError(ExitCommandError, "no manifests configured (set manifests in hostgen.toml or pass --manifest)")
	}
	manifests, err := manifest.LoadAll(cfg.Manifests)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load manifests", err)
	}

	reg := registry.New(registry.WithReservedPrefix(cfg.ReservedPrefix), registry.WithLogger(logger))
	if err := manifest.Register(reg, manifests...); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to register hosts", err)
	}
	logger.Debug("hosts registered", "manifests", len(manifests), "hosts", reg.Snapshot().Len())

	s := &session{cfg: cfg, logger: logger, reg: reg}

	rtOpts := []runtime.Option{
		runtime.WithOutDir(cfg.OutDir),
		runtime.WithSourceRoot(cfg.SourceRoot),
		runtime.WithStateFile(cfg.StateFile),
		runtime.WithReportFile(cfg.ReportFile),
		runtime.WithDebounce(cfg.Debounce),
		runtime.WithConcurrency(cfg.Concurrency),
		runtime.WithClean(cfg.Clean),
		runtime.WithReport(cfg.Report || sc.report),
		runtime.WithLogger(logger),
	}
	if sc.history && cfg.HistoryDB != "" {
		st, err := store.Open(cfg.HistoryDB, store.WithRetention(cfg.HistoryKeep))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		s.history = st
		rtOpts = append(rtOpts, runtime.WithHistory(st))
	}
	rtOpts = append(rtOpts, sc.extra...)
	rtOpts = append(rtOpts, opts.runtimeOpts...)
	s.rt = runtime.New(reg.Snapshot, rtOpts...)
	return s, nil
}

func (s *session) close() {
	if err := s.rt.Close(); err != nil {
		s.logger.Error("error closing runtime", "error", err)
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Error("error closing history database", "error", err)
		}
	}
}

// passError maps a failed pass to an exit code.
func passError(op string, err error) error {
	if runtime.IsStateError(err, runtime.ErrCodeUnknownHost) {
		return WrapExitError(ExitCommandError, op+" failed", err)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitFailure, op+" failed", err)
}
