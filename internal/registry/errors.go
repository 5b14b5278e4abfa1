package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ConflictCode categorizes registration conflicts.
type ConflictCode string

const (
	// ErrCodePathConflict indicates the path is bound to a different host id.
	ErrCodePathConflict ConflictCode = "PATH_CONFLICT"

	// ErrCodeReservedOwner indicates a reserved/non-reserved owner collision.
	ErrCodeReservedOwner ConflictCode = "RESERVED_OWNER"

	// ErrCodePathMismatch indicates a host id re-declared with another path.
	ErrCodePathMismatch ConflictCode = "PATH_MISMATCH"

	// ErrCodeIncompatible indicates a content-different cross-owner redeclaration.
	ErrCodeIncompatible ConflictCode = "INCOMPATIBLE"

	// ErrCodeUnknownHost indicates an operation on a host that is not registered.
	ErrCodeUnknownHost ConflictCode = "UNKNOWN_HOST"

	// ErrCodeInvalid indicates a malformed declaration reached the registry.
	ErrCodeInvalid ConflictCode = "INVALID"
)

// ConflictError reports a registration that was refused.
type ConflictError struct {
	Code    ConflictCode
	HostID  string
	Path    string
	Owners  []string
	Message string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("registration conflict [%s]: %s (host=%s", e.Code, e.Message, e.HostID)
	if e.Path != "" && e.Path != e.HostID {
		msg += ", path=" + e.Path
	}
	if len(e.Owners) > 0 {
		msg += ", owners=" + strings.Join(e.Owners, ",")
	}
	return msg + ")"
}

// IsConflict reports whether err is a ConflictError with the given code.
// An empty code matches any conflict.
func IsConflict(err error, code ConflictCode) bool {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return code == "" || ce.Code == code
	}
	return false
}
