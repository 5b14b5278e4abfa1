package slots

import (
	"errors"
	"fmt"
)

// ViolationCode categorizes slot violations.
type ViolationCode string

const (
	// ErrCodeKindNotAccepted indicates an item kind outside the slot's allow-list.
	ErrCodeKindNotAccepted ViolationCode = "KIND_NOT_ACCEPTED"

	// ErrCodeMissingKey indicates a key-required item without a key.
	ErrCodeMissingKey ViolationCode = "MISSING_KEY"

	// ErrCodeMarkerNotFound indicates a declared slot with no marker in the template.
	ErrCodeMarkerNotFound ViolationCode = "MARKER_NOT_FOUND"

	// ErrCodeDuplicateMarker indicates a slot name marked more than once.
	ErrCodeDuplicateMarker ViolationCode = "DUPLICATE_MARKER"

	// ErrCodeRegistryConflict indicates two different payloads under one registry key.
	ErrCodeRegistryConflict ViolationCode = "REGISTRY_CONFLICT"

	// ErrCodeInvalidData indicates item data a preset cannot interpret.
	ErrCodeInvalidData ViolationCode = "INVALID_DATA"

	// ErrCodeMissingRender indicates a slot without a render function.
	ErrCodeMissingRender ViolationCode = "MISSING_RENDER"

	// ErrCodeCallbackFailed indicates a caller-supplied input, map or render function failed.
	ErrCodeCallbackFailed ViolationCode = "CALLBACK_FAILED"
)

// ViolationError is returned when slot composition cannot proceed.
type ViolationError struct {
	Code    ViolationCode
	Host    string
	Slot    string
	Kind    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ViolationError) Error() string {
	msg := fmt.Sprintf("slot violation [%s]: %s (host=%s, slot=%s", e.Code, e.Message, e.Host, e.Slot)
	if e.Kind != "" {
		msg += ", kind=" + e.Kind
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ViolationError) Unwrap() error {
	return e.Err
}

// IsViolation reports whether err is a ViolationError with the given code.
// An empty code matches any violation.
func IsViolation(err error, code ViolationCode) bool {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return code == "" || ve.Code == code
	}
	return false
}

func violation(code ViolationCode, rc RenderContext, kind, format string, args ...any) *ViolationError {
	return &ViolationError{
		Code:    code,
		Host:    rc.Host,
		Slot:    rc.Slot,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}
