package writer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/hostgen/internal/ir"
)

// DefaultConcurrency caps simultaneous in-flight writes.
const DefaultConcurrency = 8

// File is one artifact to persist. Path is slash separated and relative to
// the writer's root.
type File struct {
	Path string
	Data []byte
	Perm os.FileMode
}

// Batch is the set of changes of one pass.
type Batch struct {
	Writes  []File
	Removes []string
}

// Result reports what a batch changed.
type Result struct {
	// Entries holds the state entry of every written path.
	Entries map[string]Entry
	Written []string
	Removed []string
}

// Writer persists batches under an output root.
type Writer struct {
	root        string
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithConcurrency caps simultaneous in-flight writes. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		w.concurrency = max(n, 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithNow overrides the clock used for entry mtimes.
func WithNow(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// New creates a writer rooted at root.
func New(root string, opts ...Option) *Writer {
	w := &Writer{
		root:        filepath.Clean(root),
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the output root.
func (w *Writer) Root() string {
	return w.root
}

// Abs resolves a managed relative path under the root.
func (w *Writer) Abs(rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", &PersistenceError{Op: "resolve", Path: rel, Err: fmt.Errorf("path escapes output root")}
	}
	return filepath.Join(w.root, local), nil
}

// Apply writes and removes the files of b.
//
// Writes run first on the bounded pool; removals run only after every write
// succeeded. The first failure cancels outstanding writes and is returned;
// files already renamed into place stay written.
func (w *Writer) Apply(ctx context.Context, b Batch) (*Result, error) {
	res := &Result{Entries: make(map[string]Entry, len(b.Writes))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, f := range b.Writes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := w.write(f)
			if err != nil {
				return err
			}
			mu.Lock()
			res.Entries[f.Path] = entry
			res.Written = append(res.Written, f.Path)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slices.Sort(res.Written)
		return res, err
	}
	slices.Sort(res.Written)

	for _, rel := range b.Removes {
		if err := w.Remove(rel); err != nil {
			return res, err
		}
		res.Removed = append(res.Removed, rel)
	}
	w.logger.Debug("batch applied", "root", w.root, "written", len(res.Written), "removed", len(res.Removed))
	return res, nil
}

func (w *Writer) write(f File) (Entry, error) {
	abs, err := w.Abs(f.Path)
	if err != nil {
		return Entry{}, err
	}
	perm := f.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := WriteFileAtomic(abs, f.Data, perm); err != nil {
		return Entry{}, err
	}
	return Entry{
		Hash:  ir.ContentHash(f.Data),
		Size:  int64(len(f.Data)),
		MTime: w.now().UnixMilli(),
	}, nil
}

// Remove deletes one managed path and prunes parent directories left empty.
func (w *Writer) Remove(rel string) error {
	abs, err := w.Abs(rel)
	if err != nil {
		return err
	}
	return removeAndPrune(w.root, abs)
}

// Exists reports whether rel exists under the root.
func (w *Writer) Exists(rel string) bool {
	abs, err := w.Abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Read returns the current content of rel under the root.
func (w *Writer) Read(rel string) ([]byte, error) {
	abs, err := w.Abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, persistErr("read", rel, err)
	}
	return data, nil
}
