package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
)

// Formatter rewrites materialized text for one host format.
type Formatter func(path string, data []byte) ([]byte, error)

// builtinFormatters returns the formatters available without configuration.
func builtinFormatters() map[string]Formatter {
	return map[string]Formatter{
		"json": formatJSON,
		"go":   formatGo,
	}
}

// formatJSON re-indents a JSON document with two spaces.
func formatJSON(path string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(data), "", "  "); err != nil {
		return nil, fmt.Errorf("format json %s: %w", path, err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// formatGo runs gofmt on Go source.
func formatGo(path string, data []byte) ([]byte, error) {
	out, err := format.Source(data)
	if err != nil {
		return nil, fmt.Errorf("format go %s: %w", path, err)
	}
	return out, nil
}
