package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostgen/internal/store"
	"github.com/roach88/hostgen/internal/writer"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestPlan_Initial(t *testing.T) {
	cfg := writeProject(t)

	out, err := execute(t, "--config", cfg, "plan")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "plan_initial", []byte(out))

	_, statErr := os.Stat(filepath.Join(filepath.Dir(cfg), "gen"))
	assert.True(t, os.IsNotExist(statErr), "plan must not write")
}

func TestCommit_WritesFiles(t *testing.T) {
	cfg := writeProject(t)
	gen := filepath.Join(filepath.Dir(cfg), "gen")

	out, err := execute(t, "--config", cfg, "commit")
	require.NoError(t, err)
	assert.Equal(t, "✓ committed: 3 written, 0 skipped, 0 removed\n", out)

	readme, err := os.ReadFile(filepath.Join(gen, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Demo\n", string(readme))

	index, err := os.ReadFile(filepath.Join(gen, "src", "index.ts"))
	require.NoError(t, err)
	assert.Equal(t, "import { b } from './a'\n\nexport {}\n", string(index))

	logo, err := os.ReadFile(filepath.Join(gen, "public", "logo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "logo\n", string(logo))

	out, err = execute(t, "--config", cfg, "plan")
	require.NoError(t, err)
	assert.Equal(t, "Plan: 0 to add, 0 to change, 0 to remove, 3 unchanged, 0 skipped.\n", out)

	out, err = execute(t, "--config", cfg, "commit")
	require.NoError(t, err)
	assert.Equal(t, "✓ committed: 0 written, 0 skipped, 0 removed\n", out)
}

func TestCommit_JSON(t *testing.T) {
	cfg := writeProject(t)

	out, err := execute(t, "--config", cfg, "--format", "json", "commit")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   resultView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"README.md", "public/logo.txt", "src/index.ts"}, resp.Data.Written)
	assert.Empty(t, resp.Data.Removed)
}

func TestCommit_RemovesOrphans(t *testing.T) {
	cfg := writeProject(t)
	dir := filepath.Dir(cfg)

	_, err := execute(t, "--config", cfg, "commit")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "assets", "logo.txt")))
	out, err := execute(t, "--config", cfg, "commit")
	require.NoError(t, err)
	assert.Equal(t, "✓ committed: 0 written, 0 skipped, 1 removed\n", out)

	_, statErr := os.Stat(filepath.Join(dir, "gen", "public", "logo.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDiff_Check(t *testing.T) {
	cfg := writeProject(t)

	out, err := execute(t, "--config", cfg, "diff", "--check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "+# Demo")

	_, err = execute(t, "--config", cfg, "commit")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfg, "diff", "--check")
	require.NoError(t, err)
	assert.Equal(t, "✓ no differences\n", out)
}

func TestExplain(t *testing.T) {
	cfg := writeProject(t)

	out, err := execute(t, "--config", cfg, "explain", "src/index.ts")
	require.NoError(t, err)
	assert.Contains(t, out, "  mode:    slots\n")
	assert.Contains(t, out, "  owners:  app\n")
	assert.Contains(t, out, "  slot imports (imports, 1 items)\n")

	out, err = execute(t, "--config", cfg, "explain", "public/logo.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "  outputs: public/logo.txt\n")
}

func TestExplain_UnknownHost(t *testing.T) {
	cfg := writeProject(t)

	_, err := execute(t, "--config", cfg, "explain", "nope.txt")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_RecordsHistory(t *testing.T) {
	cfg := writeProject(t)
	dir := filepath.Dir(cfg)

	out, err := execute(t, "--config", cfg, "--format", "json", "run", "--report", "--reason", "test")
	require.NoError(t, err)

	var resp struct {
		Data resultView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.RunID)
	assert.Equal(t, "test", resp.Data.Reason)
	assert.Len(t, resp.Data.Written, 3)
	assert.FileExists(t, filepath.Join(dir, "gen", ".cache", "generate-report.json"))

	out, err = execute(t, "--config", cfg, "--format", "json", "history")
	require.NoError(t, err)
	var runs struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Data, 1)
	assert.Equal(t, resp.Data.RunID, runs.Data[0].ID)
	assert.Equal(t, "test", runs.Data[0].Reason)
	assert.Equal(t, 3, runs.Data[0].Written)

	out, err = execute(t, "--config", cfg, "history", resp.Data.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, resp.Data.RunID)
	assert.Contains(t, out, "src/index.ts")

	out, err = execute(t, "--config", cfg, "history", "--path", "README.md")
	require.NoError(t, err)
	assert.Contains(t, out, resp.Data.RunID+" ")
}

func TestRun_HistoryRetention(t *testing.T) {
	cfg := writeProject(t)
	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("history_keep = 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	for range 3 {
		_, err := execute(t, "--config", cfg, "run")
		require.NoError(t, err)
	}

	out, err := execute(t, "--config", cfg, "--format", "json", "history")
	require.NoError(t, err)
	var runs struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Data, 1)
	assert.Equal(t, writer.Generator, runs.Data[0].Generator)
}

func TestHistory_UnknownRun(t *testing.T) {
	cfg := writeProject(t)
	_, err := execute(t, "--config", cfg, "run")
	require.NoError(t, err)

	_, err = execute(t, "--config", cfg, "history", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHistory_NoDatabase(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, ""), "history")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestManifestAndOutFlags(t *testing.T) {
	cfg := writeProject(t)
	dir := filepath.Dir(cfg)
	out := filepath.Join(t.TempDir(), "elsewhere")

	_, err := execute(t, "--manifest", filepath.Join(dir, "hosts.yaml"), "--out", out,
		"--config", writeConfig(t, ""), "commit")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "README.md"))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hostgen.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}
