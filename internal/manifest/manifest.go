package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Manifest is one parsed manifest file.
type Manifest struct {
	Owner string     `yaml:"owner,omitempty" json:"owner,omitempty"`
	Scope []string   `yaml:"scope,omitempty" json:"scope,omitempty"`
	Hosts []HostDecl `yaml:"hosts" json:"hosts"`

	// Path is the file the manifest was loaded from; Dir anchors relative
	// file references.
	Path string `yaml:"-" json:"-"`
	Dir  string `yaml:"-" json:"-"`
}

// HostDecl declares one host. Exactly one of Text, CopyFile, CopyDir and
// Slots must be set.
type HostDecl struct {
	Owner          string        `yaml:"owner,omitempty" json:"owner,omitempty"`
	Path           string        `yaml:"path" json:"path"`
	ID             string        `yaml:"id,omitempty" json:"id,omitempty"`
	Kind           string        `yaml:"kind,omitempty" json:"kind,omitempty"`
	Format         string        `yaml:"format,omitempty" json:"format,omitempty"`
	Tags           []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	Observe        []string      `yaml:"observe,omitempty" json:"observe,omitempty"`
	Conflict       string        `yaml:"conflict,omitempty" json:"conflict,omitempty"`
	ExternalWrites []string      `yaml:"external_writes,omitempty" json:"external_writes,omitempty"`
	Text           *TextDecl     `yaml:"text,omitempty" json:"text,omitempty"`
	CopyFile       *CopyFileDecl `yaml:"copy_file,omitempty" json:"copy_file,omitempty"`
	CopyDir        *CopyDirDecl  `yaml:"copy_dir,omitempty" json:"copy_dir,omitempty"`
	Slots          *SlotsDecl    `yaml:"slots,omitempty" json:"slots,omitempty"`
	IR             []PushDecl    `yaml:"ir,omitempty" json:"ir,omitempty"`
}

// TextDecl is the text-mode payload. Content and ContentFile are exclusive.
type TextDecl struct {
	Content     *string `yaml:"content,omitempty" json:"content,omitempty"`
	ContentFile string  `yaml:"content_file,omitempty" json:"content_file,omitempty"`
	EOL         string  `yaml:"eol,omitempty" json:"eol,omitempty"`
	Encoding    string  `yaml:"encoding,omitempty" json:"encoding,omitempty"`
}

type CopyFileDecl struct {
	Source string `yaml:"source" json:"source"`
}

type CopyDirDecl struct {
	Source string   `yaml:"source" json:"source"`
	Filter []string `yaml:"filter,omitempty" json:"filter,omitempty"`
	Ignore []string `yaml:"ignore,omitempty" json:"ignore,omitempty"`
	// StripPrefix removes a leading directory from every copied path;
	// files outside it are dropped.
	StripPrefix string `yaml:"strip_prefix,omitempty" json:"strip_prefix,omitempty"`
}

// SlotsDecl is the slots-mode payload. Template and TemplateFile are exclusive.
type SlotsDecl struct {
	Template      *string             `yaml:"template,omitempty" json:"template,omitempty"`
	TemplateFile  string              `yaml:"template_file,omitempty" json:"template_file,omitempty"`
	Detect        bool                `yaml:"detect,omitempty" json:"detect,omitempty"`
	IgnoreMissing bool                `yaml:"ignore_missing_markers,omitempty" json:"ignore_missing_markers,omitempty"`
	Slots         map[string]SlotDecl `yaml:"slots,omitempty" json:"slots,omitempty"`
	Add           []ItemDecl          `yaml:"add,omitempty" json:"add,omitempty"`
}

// SlotDecl declares one slot. Preset defaults to "snippet".
type SlotDecl struct {
	Preset      string      `yaml:"preset,omitempty" json:"preset,omitempty"`
	Accepts     []string    `yaml:"accepts,omitempty" json:"accepts,omitempty"`
	KeyRequired []string    `yaml:"key_required,omitempty" json:"key_required,omitempty"`
	Inputs      []InputDecl `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	// Prefix and Suffix frame the registry preset's JSON table.
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Suffix string `yaml:"suffix,omitempty" json:"suffix,omitempty"`
}

type InputDecl struct {
	ID      string `yaml:"id" json:"id"`
	Channel string `yaml:"channel,omitempty" json:"channel,omitempty"`
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Source  string `yaml:"source,omitempty" json:"source,omitempty"`
}

// ItemDecl is a direct contribution to a slot of the declaring host.
type ItemDecl struct {
	Slot    string         `yaml:"slot" json:"slot"`
	Kind    string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Data    any            `yaml:"data,omitempty" json:"data,omitempty"`
	Key     string         `yaml:"key,omitempty" json:"key,omitempty"`
	Stage   string         `yaml:"stage,omitempty" json:"stage,omitempty"`
	Order   int            `yaml:"order,omitempty" json:"order,omitempty"`
	Module  string         `yaml:"module,omitempty" json:"module,omitempty"`
	Version string         `yaml:"version,omitempty" json:"version,omitempty"`
	Meta    map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// PushDecl pushes a value onto an IR channel. To defaults to the declaring host.
type PushDecl struct {
	Channel string `yaml:"channel" json:"channel"`
	Value   any    `yaml:"value" json:"value"`
	To      string `yaml:"to,omitempty" json:"to,omitempty"`
}

// Load reads a manifest, choosing the decoder by file extension:
// .yaml/.yml for YAML and .cue for CUE.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}
	var m *Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = ParseYAML(data)
	case ".cue":
		m, err = ParseCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Path: path,
			Message: fmt.Sprintf("unsupported manifest extension %q (want .yaml, .yml or .cue)", filepath.Ext(path))}
	}
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Path == "" {
			le.Path = path
		}
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Path: path, Message: err.Error()}
	}
	m.Path = abs
	m.Dir = filepath.Dir(abs)
	return m, nil
}

// LoadAll loads every path in order.
func LoadAll(paths []string) ([]*Manifest, error) {
	out := make([]*Manifest, 0, len(paths))
	for _, p := range paths {
		m, err := Load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ParseYAML decodes a YAML manifest. Unknown fields are rejected.
func ParseYAML(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, &LoadError{Code: ErrCodeParse, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	return &m, nil
}

// ParseCUE evaluates a CUE manifest against the manifest schema and decodes it.
// The file's top-level value must satisfy #Manifest.
func ParseCUE(filename string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuild, Message: fmt.Sprintf("building schema: %v", err)}
	}

	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(ErrCodeParse, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, cueLoadError(ErrCodeSchema, err)
	}
	return &m, nil
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = strings.TrimSpace(errs[0].Error())
	}
	return le
}
