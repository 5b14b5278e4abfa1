// Package config loads hostgen.toml.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "hostgen.toml"

// Defaults applied after load.
const (
	DefaultStateFile      = ".cache/generate-state.json"
	DefaultReportFile     = ".cache/generate-report.json"
	DefaultDebounce       = 50 * time.Millisecond
	DefaultConcurrency    = 8
	DefaultReservedPrefix = "core:"
	DefaultLogLevel       = "info"
)

// Config is the resolved configuration. Relative paths in the file are
// anchored at the file's directory.
type Config struct {
	OutDir         string
	SourceRoot     string
	StateFile      string
	ReportFile     string
	Report         bool
	Clean          bool
	Debounce       time.Duration
	Concurrency    int
	HistoryDB      string
	HistoryKeep    int
	Manifests      []string
	ReservedPrefix string
	LogLevel       string
}

type fileConfig struct {
	OutDir         string   `toml:"out_dir"`
	SourceRoot     string   `toml:"source_root"`
	StateFile      string   `toml:"state_file"`
	ReportFile     string   `toml:"report_file"`
	Report         bool     `toml:"report"`
	Clean          *bool    `toml:"clean"`
	Debounce       string   `toml:"debounce"`
	Concurrency    int      `toml:"concurrency"`
	HistoryDB      string   `toml:"history_db"`
	HistoryKeep    int      `toml:"history_keep"`
	Manifests      []string `toml:"manifests"`
	ReservedPrefix *string  `toml:"reserved_prefix"`
	LogLevel       string   `toml:"log_level"`
}

// Default returns the configuration used when no file exists, rooted at dir.
func Default(dir string) Config {
	return Config{
		OutDir:         dir,
		SourceRoot:     dir,
		StateFile:      DefaultStateFile,
		ReportFile:     DefaultReportFile,
		Clean:          true,
		Debounce:       DefaultDebounce,
		Concurrency:    DefaultConcurrency,
		ReservedPrefix: DefaultReservedPrefix,
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads a TOML config file, applies defaults and validates.
func Load(path string) (Config, error) {
	var raw fileConfig
	if err := loadToml(path, &raw); err != nil {
		return Config{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dir := filepath.Dir(abs)

	cfg := Default(dir)
	if raw.OutDir != "" {
		cfg.OutDir = anchor(dir, raw.OutDir)
	}
	if raw.SourceRoot != "" {
		cfg.SourceRoot = anchor(dir, raw.SourceRoot)
	}
	if raw.StateFile != "" {
		cfg.StateFile = raw.StateFile
	}
	if raw.ReportFile != "" {
		cfg.ReportFile = raw.ReportFile
	}
	cfg.Report = raw.Report
	if raw.Clean != nil {
		cfg.Clean = *raw.Clean
	}
	if s := strings.TrimSpace(raw.Debounce); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return Config{}, fmt.Errorf("parse debounce: %w", err)
		}
		cfg.Debounce = d
	}
	if raw.Concurrency != 0 {
		cfg.Concurrency = raw.Concurrency
	}
	if raw.HistoryDB != "" {
		cfg.HistoryDB = anchor(dir, raw.HistoryDB)
	}
	cfg.HistoryKeep = raw.HistoryKeep
	for _, m := range raw.Manifests {
		cfg.Manifests = append(cfg.Manifests, anchor(dir, m))
	}
	if raw.ReservedPrefix != nil {
		cfg.ReservedPrefix = *raw.ReservedPrefix
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func anchor(dir, p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks a resolved configuration.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.OutDir) == "" {
		return fmt.Errorf("config missing out_dir")
	}
	if cfg.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", cfg.Debounce)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.HistoryKeep < 0 {
		return fmt.Errorf("history_keep must not be negative, got %d", cfg.HistoryKeep)
	}
	for i, m := range cfg.Manifests {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".yaml", ".yml", ".cue":
		default:
			return fmt.Errorf("manifests[%d] %q: want a .yaml, .yml or .cue file", i, m)
		}
	}
	if _, err := cfg.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
