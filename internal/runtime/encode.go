package runtime

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/roach88/hostgen/internal/host"
)

// normalizeText converts line endings to LF, ensures non-empty text ends
// with a newline, then applies the requested EOL.
func normalizeText(s string, eol host.EOL) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	if eol == host.EOLCRLF {
		s = strings.ReplaceAll(s, "\n", "\r\n")
	}
	return s
}

// encodeText encodes s in the requested character encoding.
func encodeText(s string, enc host.Encoding) ([]byte, error) {
	var e encoding.Encoding
	switch enc {
	case "", host.EncodingUTF8:
		return []byte(s), nil
	case host.EncodingUTF8BOM:
		e = unicode.UTF8BOM
	case host.EncodingUTF16LE:
		e = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case host.EncodingUTF16BE:
		e = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	out, err := e.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", enc, err)
	}
	return out, nil
}
