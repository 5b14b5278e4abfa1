package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// CRITICAL: This is the ONLY serialization that should be used for
// content identity (fingerprints, payload equality).
//
// Key differences from standard json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Non-finite floats are rejected
//
// Values that are not plain JSON shapes (structs, typed maps, typed slices)
// are first passed through encoding/json so their json tags apply.
func MarshalCanonical(v any) ([]byte, error) {
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, plain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toPlain reduces v to nil, bool, string, json.Number, int64, float64,
// []any and map[string]any.
func toPlain(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, json.Number, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			p, err := toPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = p
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			p, err := toPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = p
		}
		return out, nil
	case map[any]any:
		// yaml.v2-style maps; keys must be strings.
		out := make(map[string]any, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string object key %v (%T)", k, k)
			}
			p, err := toPlain(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			out[ks] = p
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Func || rv.Kind() == reflect.Chan {
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T: %w", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return toPlain(generic)
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		writeCanonicalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		return writeCanonicalFloat(buf, val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", val, err)
		}
		return writeCanonicalFloat(buf, f)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range SortedKeys(val) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalFloat writes integral floats as integers and everything else
// in shortest round-trip form.
func writeCanonicalFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number is forbidden in canonical JSON: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string.
// Only the quote, backslash and control characters (U+0000-U+001F) are
// escaped; U+2028/U+2029 and HTML characters are written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for _, r := range norm.NFC.String(s) {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[r>>4])
				buf.WriteByte(hex[r&0xF])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order
// for characters outside the BMP.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareUTF16)
	return keys
}

// CompareUTF16 compares strings by UTF-16 code units.
func CompareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}
