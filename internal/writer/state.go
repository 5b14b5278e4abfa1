package writer

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/roach88/hostgen/internal/ir"
)

// Entry is the persisted record of one managed output path.
type Entry struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	// MTime is the last write time in Unix milliseconds.
	MTime int64 `json:"mtime,omitempty"`
}

// State maps output paths (slash separated, relative to the output root) to
// their persisted entries.
type State struct {
	Version int              `json:"version"`
	Managed map[string]Entry `json:"managed"`
}

// NewState returns an empty state at the current version.
func NewState() *State {
	return &State{Version: ir.StateVersion, Managed: make(map[string]Entry)}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	out := NewState()
	if s != nil {
		maps.Copy(out.Managed, s.Managed)
	}
	return out
}

// Paths returns the managed paths, sorted.
func (s *State) Paths() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.Managed))
}

// Lookup returns the entry for path.
func (s *State) Lookup(path string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.Managed[path]
	return e, ok
}

// LoadState reads the state file at path.
//
// A missing file yields an empty state. A file that cannot be decoded or
// carries an unknown version also yields an empty state; the problem is
// logged and every output is treated as new.
func LoadState(path string, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewState(), nil
		}
		return nil, persistErr("read", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("state file unreadable, starting empty", "path", path, "error", err)
		return NewState(), nil
	}
	if st.Version != ir.StateVersion {
		logger.Warn("state file version mismatch, starting empty",
			"path", path, "version", st.Version, "want", ir.StateVersion)
		return NewState(), nil
	}
	if st.Managed == nil {
		st.Managed = make(map[string]Entry)
	}
	return &st, nil
}

// SaveState writes the state file atomically. Keys are emitted sorted.
func SaveState(path string, st *State) error {
	if st == nil {
		st = NewState()
	}
	st.Version = ir.StateVersion
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return persistErr("write", path, err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// Orphans returns the previously managed paths that are absent from next
// and not protected, sorted.
func Orphans(prev *State, next map[string]bool, protected []string) []string {
	keep := make(map[string]bool, len(protected))
	for _, p := range protected {
		keep[p] = true
	}
	var out []string
	for _, p := range prev.Paths() {
		if !next[p] && !keep[p] {
			out = append(out, p)
		}
	}
	return out
}
