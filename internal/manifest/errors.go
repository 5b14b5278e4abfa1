package manifest

import (
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes for manifest loading.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeUnsupported = "E_UNSUPPORTED"
	ErrCodeParse       = "E_PARSE"
	ErrCodeBuild       = "E_BUILD"
	ErrCodeSchema      = "E_SCHEMA"
	ErrCodeHost        = "E_HOST"
)

// LoadError reports a manifest that could not be loaded or declared.
type LoadError struct {
	Code    string
	Path    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
