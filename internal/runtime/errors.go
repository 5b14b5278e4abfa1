package runtime

import (
	"errors"
	"fmt"
	"strings"
)

// PlanConflictError reports outputs that cannot be planned. It aborts the
// whole pass; nothing is written.
type PlanConflictError struct {
	Path    string
	Hosts   []string
	Message string
}

// Error implements the error interface.
func (e *PlanConflictError) Error() string {
	return fmt.Sprintf("plan conflict: %s: %s (hosts=%s)", e.Path, e.Message, strings.Join(e.Hosts, ","))
}

// IsPlanConflict reports whether err is a PlanConflictError.
func IsPlanConflict(err error) bool {
	var pe *PlanConflictError
	return errors.As(err, &pe)
}

// StateErrorCode categorizes lifecycle misuse.
type StateErrorCode string

const (
	// ErrCodeClosed indicates an operation on a closing or stopped runtime.
	ErrCodeClosed StateErrorCode = "CLOSED"

	// ErrCodeAlreadyStarted indicates Start was called twice.
	ErrCodeAlreadyStarted StateErrorCode = "ALREADY_STARTED"

	// ErrCodeUnknownHost indicates Explain named a host that is not registered.
	ErrCodeUnknownHost StateErrorCode = "UNKNOWN_HOST"

	// ErrCodeNotRendered indicates Explain named a host that has not been rendered yet.
	ErrCodeNotRendered StateErrorCode = "NOT_RENDERED"
)

// StateError reports an operation that is invalid in the runtime's current state.
type StateError struct {
	Code    StateErrorCode
	Phase   Phase
	Message string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("runtime %s: %s [%s]", e.Phase, e.Message, e.Code)
}

// IsStateError reports whether err is a StateError with the given code.
// An empty code matches any state error.
func IsStateError(err error, code StateErrorCode) bool {
	var se *StateError
	if errors.As(err, &se) {
		return code == "" || se.Code == code
	}
	return false
}
