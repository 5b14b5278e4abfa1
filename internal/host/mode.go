package host

import (
	"fmt"
	"strings"

	"github.com/roach88/hostgen/internal/slots"
)

// Mode is the strategy that produces a host's content.
type Mode int

const (
	ModeUnset Mode = iota
	ModeText
	ModeCopyFile
	ModeCopyDir
	ModeSlots
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeCopyFile:
		return "copyFile"
	case ModeCopyDir:
		return "copyDir"
	case ModeSlots:
		return "slots"
	default:
		return "unset"
	}
}

// Payload is the mode-specific part of a Spec. It is a closed set:
// *TextPayload, *CopyFilePayload, *CopyDirPayload and *SlotsPayload.
type Payload interface {
	Mode() Mode
	sealed()
}

// EOL selects the line ending of text output.
type EOL string

const (
	EOLLF   EOL = "lf"
	EOLCRLF EOL = "crlf"
)

// Encoding selects the byte encoding of text output.
type Encoding string

const (
	EncodingUTF8    Encoding = "utf-8"
	EncodingUTF8BOM Encoding = "utf-8-bom"
	EncodingUTF16LE Encoding = "utf-16le"
	EncodingUTF16BE Encoding = "utf-16be"
)

// ParseEncoding accepts the encoding names used in manifests.
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(s)); e {
	case "", "utf8", EncodingUTF8:
		return EncodingUTF8, nil
	case EncodingUTF8BOM, EncodingUTF16LE, EncodingUTF16BE:
		return e, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

// ParseEOL accepts "lf", "crlf" or "".
func ParseEOL(s string) (EOL, error) {
	switch e := EOL(strings.ToLower(s)); e {
	case "", EOLLF:
		return EOLLF, nil
	case EOLCRLF:
		return EOLCRLF, nil
	default:
		return "", fmt.Errorf("unknown eol %q", s)
	}
}

// ConflictPolicy decides what happens when a newly managed output path
// already exists on disk as an unmanaged file.
type ConflictPolicy int

const (
	ConflictOverwrite ConflictPolicy = iota
	ConflictSkip
	ConflictError
)

func (c ConflictPolicy) String() string {
	switch c {
	case ConflictSkip:
		return "skip"
	case ConflictError:
		return "error"
	default:
		return "overwrite"
	}
}

// ParseConflictPolicy accepts "overwrite", "skip", "error" or "".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(s) {
	case "", "overwrite":
		return ConflictOverwrite, nil
	case "skip":
		return ConflictSkip, nil
	case "error":
		return ConflictError, nil
	default:
		return ConflictOverwrite, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// TextPayload produces content from a literal or a producer function.
type TextPayload struct {
	Content  Content
	Encoding Encoding
	EOL      EOL
}

// CopyFilePayload copies one source file, optionally transformed.
type CopyFilePayload struct {
	Source    string
	Transform func(data []byte) ([]byte, error)
}

// CopyDirPayload copies a directory tree.
//
// Filter globs select files (all files when empty); Ignore globs exclude
// them. Remap rewrites a source-relative path; returning false skips the file.
type CopyDirPayload struct {
	Source string
	Filter []string
	Ignore []string
	Remap  func(rel string) (string, bool)
}

// SlotsPayload composes a template from named slots.
type SlotsPayload struct {
	Template Content
	Slots    map[string]*slots.Spec
	Markers  slots.MarkerPolicy
	// DetectSlots asks for a default snippet slot per undeclared marker.
	// Literal templates are scanned at End; producer templates when rendered.
	DetectSlots bool
}

func (*TextPayload) Mode() Mode     { return ModeText }
func (*CopyFilePayload) Mode() Mode { return ModeCopyFile }
func (*CopyDirPayload) Mode() Mode  { return ModeCopyDir }
func (*SlotsPayload) Mode() Mode    { return ModeSlots }

func (*TextPayload) sealed()     {}
func (*CopyFilePayload) sealed() {}
func (*CopyDirPayload) sealed()  {}
func (*SlotsPayload) sealed()    {}

// SlotNames returns the declared slot names, sorted.
func (p *SlotsPayload) SlotNames() []string {
	names := make([]string, 0, len(p.Slots))
	for name := range p.Slots {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// DefaultSlot is the slot auto-created for a detected marker.
func DefaultSlot(name string) *slots.Spec {
	s := &slots.Spec{Name: name}
	slots.Snippets().Apply(s)
	return s
}
