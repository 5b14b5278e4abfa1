package host

import (
	"errors"
	"fmt"
)

// DeclarationCode categorizes builder misuse.
type DeclarationCode string

const (
	ErrCodeEmptyOwner      DeclarationCode = "EMPTY_OWNER"
	ErrCodeEmptyPath       DeclarationCode = "EMPTY_PATH"
	ErrCodeInvalidPath     DeclarationCode = "INVALID_PATH"
	ErrCodePathOutOfScope  DeclarationCode = "PATH_OUT_OF_SCOPE"
	ErrCodeModeNotSet      DeclarationCode = "MODE_NOT_SET"
	ErrCodeModeAlreadySet  DeclarationCode = "MODE_ALREADY_SET"
	ErrCodeMissingContent  DeclarationCode = "MISSING_CONTENT"
	ErrCodeMissingSource   DeclarationCode = "MISSING_SOURCE"
	ErrCodeMissingTemplate DeclarationCode = "MISSING_TEMPLATE"
	ErrCodeNoSlots         DeclarationCode = "NO_SLOTS"
	ErrCodeEmptySlotName   DeclarationCode = "EMPTY_SLOT_NAME"
	ErrCodeMissingRender   DeclarationCode = "MISSING_RENDER"
	ErrCodeEmptyChannel    DeclarationCode = "EMPTY_CHANNEL"
)

// DeclarationError reports a host declaration that cannot be finalized.
type DeclarationError struct {
	Code    DeclarationCode
	Owner   string
	Path    string
	Message string
}

// Error implements the error interface.
func (e *DeclarationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("declaration error [%s]: %s (owner=%s, path=%s)", e.Code, e.Message, e.Owner, e.Path)
	}
	return fmt.Sprintf("declaration error [%s]: %s (owner=%s)", e.Code, e.Message, e.Owner)
}

// IsDeclarationError reports whether err is a DeclarationError with the
// given code. An empty code matches any declaration error.
func IsDeclarationError(err error, code DeclarationCode) bool {
	var de *DeclarationError
	if errors.As(err, &de) {
		return code == "" || de.Code == code
	}
	return false
}
