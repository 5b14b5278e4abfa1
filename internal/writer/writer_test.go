package writer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostgen/internal/ir"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("one\n"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")
	assert.Equal(t, "out.txt", entries[0].Name())
}

func TestWriteFileAtomic_FailureLeavesDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))

	// A directory at the destination makes the rename fail.
	target := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))
	err := WriteFileAtomic(target, []byte("x"), 0o644)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.Contains(t, err.Error(), "persistence error")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temporary file is cleaned up")
}

func TestApply_WritesAndRemoves(t *testing.T) {
	root := t.TempDir()
	fixed := time.UnixMilli(1_700_000_000_000)
	w := New(root, WithConcurrency(2), WithNow(func() time.Time { return fixed }))

	var writes []File
	for _, p := range []string{"a.txt", "src/b.ts", "src/deep/c.ts", "d.json"} {
		writes = append(writes, File{Path: p, Data: []byte(p + "\n")})
	}
	res, err := w.Apply(context.Background(), Batch{Writes: writes})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "d.json", "src/b.ts", "src/deep/c.ts"}, res.Written)
	assert.Equal(t, Entry{Hash: ir.ContentHash([]byte("a.txt\n")), Size: 6, MTime: fixed.UnixMilli()}, res.Entries["a.txt"])

	res, err = w.Apply(context.Background(), Batch{Removes: []string{"src/deep/c.ts"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/deep/c.ts"}, res.Removed)
	assert.NoDirExists(t, filepath.Join(root, "src", "deep"), "empty parents are pruned")
	assert.DirExists(t, filepath.Join(root, "src"), "non-empty parents stay")
	assert.DirExists(t, root, "root is never pruned")
}

func TestRemove_PrunesShortParentsUnderRelativeRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	w := New(".")

	_, err := w.Apply(context.Background(), Batch{Writes: []File{
		{Path: "a/x.txt", Data: []byte("x")},
		{Path: "b/c/y.txt", Data: []byte("y")},
	}})
	require.NoError(t, err)

	require.NoError(t, w.Remove("a/x.txt"))
	require.NoError(t, w.Remove("b/c/y.txt"))
	assert.NoDirExists(t, "a")
	assert.NoDirExists(t, "b")
	assert.DirExists(t, ".")
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, dir string
		want      bool
	}{
		{".", "a", true},
		{".", ".", false},
		{"out", "out/a", true},
		{"out", "out", false},
		{"out", "outer", false},
		{"out", "..", false},
		{"/tmp/out", "/tmp/out/a/b", true},
		{"/tmp/out", "/tmp", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(filepath.FromSlash(tt.root), filepath.FromSlash(tt.dir)), "%s in %s", tt.dir, tt.root)
	}
}

func TestApply_RejectsEscapingPath(t *testing.T) {
	w := New(t.TempDir())
	_, err := w.Apply(context.Background(), Batch{Writes: []File{{Path: "../evil", Data: []byte("x")}}})
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
}

func TestApply_CancelledContext(t *testing.T) {
	w := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Apply(ctx, Batch{Writes: []File{{Path: "a", Data: []byte("x")}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemove_MissingIsNotAnError(t *testing.T) {
	w := New(t.TempDir())
	assert.NoError(t, w.Remove("never/written.txt"))
}

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cache", "generate-state.json")

	st, err := LoadState(path, nil)
	require.NoError(t, err)
	assert.Empty(t, st.Managed, "missing state loads empty")

	st.Managed["b.ts"] = Entry{Hash: "h2", Size: 2}
	st.Managed["a.ts"] = Entry{Hash: "h1", Size: 1, MTime: 5}
	require.NoError(t, SaveState(path, st))

	loaded, err := LoadState(path, nil)
	require.NoError(t, err)
	assert.Equal(t, st.Managed, loaded.Managed)
	assert.Equal(t, []string{"a.ts", "b.ts"}, loaded.Paths())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": 1`)
	assert.Less(t, bytes.Index(raw, []byte(`"a.ts"`)), bytes.Index(raw, []byte(`"b.ts"`)))
}

func TestLoadState_BadInputStartsEmpty(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	st, err := LoadState(garbage, logger)
	require.NoError(t, err)
	assert.Empty(t, st.Managed)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":99,"managed":{"a":{"hash":"x","size":1}}}`), 0o644))
	st, err = LoadState(future, logger)
	require.NoError(t, err)
	assert.Empty(t, st.Managed)
	assert.Contains(t, logs.String(), "version mismatch")
}

func TestOrphans(t *testing.T) {
	prev := NewState()
	for _, p := range []string{"a", "b", "c", "ext"} {
		prev.Managed[p] = Entry{}
	}
	next := map[string]bool{"a": true, "new": true}
	assert.Equal(t, []string{"b", "c"}, Orphans(prev, next, []string{"ext"}))
	assert.Empty(t, Orphans(NewState(), next, nil))
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r := &Report{RunID: "run-1", Written: []string{"a"}}
	require.NoError(t, WriteReport(path, r))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"runId": "run-1"`)
	assert.Contains(t, string(raw), `"skipped": []`)
	assert.Contains(t, string(raw), `"generator": "`+Generator+`"`)
	assert.Equal(t, 1, r.Version)
}
