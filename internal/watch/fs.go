package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Hub multiplexes one fsnotify watcher across many file sources.
type Hub struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  int
	subs    map[int]*fileSub
	added   map[string]int // watched dir -> reference count
	closed  bool
	started bool
	done    chan struct{}
}

type fileSub struct {
	root    string
	isDir   bool
	globs   []string
	emitter Emitter
	dirs    []string
}

// NewHub starts a watcher. Call Run to deliver events and Close to release it.
func NewHub(logger *slog.Logger) (*Hub, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		watcher: w,
		logger:  logger,
		subs:    make(map[int]*fileSub),
		added:   make(map[string]int),
		done:    make(chan struct{}),
	}, nil
}

// Path returns a source watching a file, or a directory tree when path is a
// directory. Globs, matched against slash separated paths relative to the
// directory, restrict which changes are reported.
func (h *Hub) Path(path string, globs ...string) Source {
	return &fileSource{hub: h, path: path, globs: globs}
}

type fileSource struct {
	hub   *Hub
	path  string
	globs []string
}

// Subscribe implements Source.
func (s *fileSource) Subscribe(e Emitter) (Disposer, error) {
	return s.hub.subscribe(s.path, s.globs, e)
}

func (h *Hub) subscribe(path string, globs []string, e Emitter) (Disposer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	sub := &fileSub{root: abs, isDir: info.IsDir(), globs: globs, emitter: e}
	if sub.isDir {
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				sub.dirs = append(sub.dirs, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		// Editors replace files by rename, so watch the parent.
		sub.dirs = []string{filepath.Dir(abs)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("watch hub is closed")
	}
	for _, d := range sub.dirs {
		if err := h.addLocked(d); err != nil {
			return nil, err
		}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = sub

	return Once(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		s, ok := h.subs[id]
		if !ok {
			return
		}
		delete(h.subs, id)
		for _, d := range s.dirs {
			h.removeLocked(d)
		}
	}), nil
}

func (h *Hub) addLocked(dir string) error {
	if h.added[dir] == 0 {
		if err := h.watcher.Add(dir); err != nil {
			return err
		}
	}
	h.added[dir]++
	return nil
}

func (h *Hub) removeLocked(dir string) {
	h.added[dir]--
	if h.added[dir] > 0 {
		return
	}
	delete(h.added, dir)
	if h.closed {
		return
	}
	if err := h.watcher.Remove(dir); err != nil {
		h.logger.Debug("watch remove failed", "dir", dir, "error", err)
	}
}

// Run delivers events until ctx is cancelled or the hub is closed.
// Watcher errors are logged and do not stop delivery.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			h.dispatch(ev)
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error("watcher error", "error", err)
		}
	}
}

func (h *Hub) dispatch(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(ev.Name)

	h.mu.Lock()
	if ev.Has(fsnotify.Create) {
		// new directories inside watched trees join the watch
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			for _, s := range h.subs {
				if s.isDir && within(s.root, name) {
					if err := h.addLocked(name); err == nil {
						s.dirs = append(s.dirs, name)
					}
				}
			}
		}
	}
	var targets []Emitter
	var reasons []string
	for _, s := range h.subs {
		if reason, ok := s.match(name, ev.Op); ok {
			targets = append(targets, s.emitter)
			reasons = append(reasons, reason)
		}
	}
	h.mu.Unlock()

	for i, e := range targets {
		h.emit(e, reasons[i])
	}
}

// emit isolates subscriber panics from the watch loop.
func (h *Hub) emit(e Emitter, reason string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("watch subscriber failed", "reason", reason, "panic", r)
		}
	}()
	e.Emit(reason)
}

func (s *fileSub) match(name string, op fsnotify.Op) (string, bool) {
	if !s.isDir {
		if name != s.root {
			return "", false
		}
		return opName(op) + ":" + filepath.Base(name), true
	}
	if !within(s.root, name) {
		return "", false
	}
	rel, err := filepath.Rel(s.root, name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if len(s.globs) > 0 {
		matched := false
		for _, g := range s.globs {
			if ok, _ := doublestar.Match(g, rel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return "", false
		}
	}
	return opName(op) + ":" + rel, true
}

func within(root, name string) bool {
	return name == root || strings.HasPrefix(name, root+string(filepath.Separator))
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "write"
	}
}

// Close stops the watcher and waits for Run to return if it was started.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	started := h.started
	h.mu.Unlock()

	err := h.watcher.Close()
	if started {
		select {
		case <-h.done:
		case <-ctx.Done():
		}
	}
	return err
}
