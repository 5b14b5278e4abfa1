package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recorder) Emit(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recorder) seen(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.reasons {
		if got == reason {
			return true
		}
	}
	return false
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

func TestOnce(t *testing.T) {
	calls := 0
	d := Once(func() { calls++ })
	d()
	d()
	assert.Equal(t, 1, calls)
	Once(nil)()
}

func TestSet(t *testing.T) {
	s := NewSet()
	hub := &fileSource{path: "x"}
	s.Add("templates", hub)

	src, err := s.Resolve("templates")
	require.NoError(t, err)
	assert.Same(t, hub, src)
	_, err = s.Resolve("missing")
	assert.ErrorContains(t, err, `unknown watch id "missing"`)
	assert.Equal(t, []string{"templates"}, s.IDs())
}

func TestHub_DirectoryEvents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0o755))

	hub, err := NewHub(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Close(context.Background())

	rec := &recorder{}
	dispose, err := hub.Path(dir, "**/*.vue").Subscribe(rec)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "index.vue"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return rec.seen("create:pages/index.vue") },
		2*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen("create:notes.txt"), "globs filter events")

	dispose()
	dispose()
	before := rec.count()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", "about.vue"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, rec.count(), "disposed subscriptions receive nothing")
}

func TestHub_SingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(file, []byte("{}"), 0o644))

	hub, err := NewHub(nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	defer hub.Close(context.Background())

	rec := &recorder{}
	_, err = hub.Path(file).Subscribe(rec)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(file, []byte(`{"a":1}`), 0o644))
	require.Eventually(t, func() bool { return rec.seen("write:config.json") },
		2*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen("create:other.json"))
}

func TestHub_SubscribeMissingPath(t *testing.T) {
	hub, err := NewHub(nil)
	require.NoError(t, err)
	defer hub.Close(context.Background())

	_, err = hub.Path(filepath.Join(t.TempDir(), "nope")).Subscribe(&recorder{})
	assert.Error(t, err)
}
