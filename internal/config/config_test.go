package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, Default(dir), cfg)
	assert.Equal(t, dir, cfg.OutDir)
	assert.True(t, cfg.Clean)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "core:", cfg.ReservedPrefix)
}

func TestLoad_AllFields(t *testing.T) {
	path := writeConfig(t, `
out_dir = "gen"
source_root = "/src"
state_file = "state.json"
report_file = "report.json"
report = true
clean = false
debounce = "0s"
concurrency = 2
history_db = "history.db"
history_keep = 50
manifests = ["hosts.yaml", "/abs/more.cue"]
reserved_prefix = ""
log_level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, Config{
		OutDir:         filepath.Join(dir, "gen"),
		SourceRoot:     "/src",
		StateFile:      "state.json",
		ReportFile:     "report.json",
		Report:         true,
		Clean:          false,
		Debounce:       0,
		Concurrency:    2,
		HistoryDB:      filepath.Join(dir, "history.db"),
		HistoryKeep:    50,
		Manifests:      []string{filepath.Join(dir, "hosts.yaml"), "/abs/more.cue"},
		ReservedPrefix: "",
		LogLevel:       "debug",
	}, cfg)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad toml", "out_dir = ", "config parse failed"},
		{"bad debounce", `debounce = "soon"`, "parse debounce"},
		{"negative debounce", `debounce = "-1s"`, "must not be negative"},
		{"bad concurrency", `concurrency = -1`, "concurrency must be at least 1"},
		{"negative history_keep", `history_keep = -1`, "history_keep must not be negative"},
		{"bad manifest", `manifests = ["hosts.json"]`, "manifests[0]"},
		{"bad log level", `log_level = "loud"`, "invalid log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config load failed")
}
