package writer

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileAtomic writes data to path through a uniquely named temporary
// file in the same directory followed by a rename. The file and its
// directory are synced before returning.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return persistErr("write", path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return persistErr("write", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return persistErr("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return persistErr("write", path, err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("write", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return persistErr("rename", path, err)
	}
	committed = true
	return persistErr("sync", dir, fsyncDir(dir))
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// removeAndPrune deletes path and then every parent directory that became
// empty, stopping at root. A missing file is not an error.
func removeAndPrune(root, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return persistErr("remove", path, err)
	}
	root = filepath.Clean(root)
	for dir := filepath.Dir(filepath.Clean(path)); dir != root && within(root, dir); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return nil
		}
	}
	return nil
}

// within reports whether dir lies strictly below root.
func within(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
