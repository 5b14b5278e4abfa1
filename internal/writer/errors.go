package writer

import (
	"errors"
	"fmt"
)

// PersistenceError reports an I/O failure while reading or writing outputs.
type PersistenceError struct {
	Op   string // "write", "rename", "remove", "read", "mkdir", "stat"
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func persistErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Path: path, Err: err}
}
