package slots

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hostgen/internal/ir"
)

// Built-in item kinds.
const (
	KindSnippet     = "snippet"
	KindImport      = "import"
	KindDeclaration = "declaration"
	KindRegistry    = "registry"
)

// Preset bundles defaults for a slot. Apply fills only the fields a spec
// leaves unset.
type Preset struct {
	Name        string
	Accepts     []string
	KeyRequired []string
	Dedupe      DedupeFunc
	Sort        func(a, b Item) int
	Render      RenderFunc
}

// Apply copies preset defaults into s.
func (p Preset) Apply(s *Spec) {
	if len(s.Accepts) == 0 {
		s.Accepts = append([]string(nil), p.Accepts...)
	}
	if s.KeyRequired == nil && p.KeyRequired != nil {
		s.KeyRequired = append([]string{}, p.KeyRequired...)
	}
	if s.Dedupe == nil {
		s.Dedupe = p.Dedupe
	}
	if s.Sort == nil {
		s.Sort = p.Sort
	}
	if s.Render == nil {
		s.Render = p.Render
	}
	s.Preset = p.Name
}

// PresetByName resolves the presets usable from declarative manifests.
func PresetByName(name string) (Preset, bool) {
	switch name {
	case "snippet", "snippets":
		return Snippets(), true
	case "imports":
		return Imports(), true
	case "declarations":
		return Declarations(), true
	case "registry":
		return RegistryTable(RegistryOptions{}), true
	default:
		return Preset{}, false
	}
}

// Snippets concatenates raw text items in order.
func Snippets() Preset {
	return Preset{
		Name:    "snippets",
		Accepts: []string{KindSnippet},
		Render: func(rc RenderContext, items []Item) (string, error) {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				text, err := snippetText(rc, it)
				if err != nil {
					return "", err
				}
				parts = append(parts, strings.TrimRight(text, "\n"))
			}
			return strings.Join(parts, "\n"), nil
		},
	}
}

func snippetText(rc RenderContext, it Item) (string, error) {
	switch v := it.Data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", nil
	default:
		return "", violation(ErrCodeInvalidData, rc, it.Kind, "snippet data must be text, got %T", it.Data)
	}
}

// ImportSpec describes one import statement contribution.
// Named entries may use "name as alias".
type ImportSpec struct {
	From       string   `json:"from" yaml:"from"`
	Default    string   `json:"default,omitempty" yaml:"default,omitempty"`
	Namespace  string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Named      []string `json:"named,omitempty" yaml:"named,omitempty"`
	TypeOnly   bool     `json:"typeOnly,omitempty" yaml:"typeOnly,omitempty"`
	SideEffect bool     `json:"sideEffect,omitempty" yaml:"sideEffect,omitempty"`
}

type moduleImports struct {
	sideEffect bool
	defaults   map[string]bool
	namespaces map[string]bool
	named      map[string]bool
	typeNamed  map[string]bool
}

// Imports aggregates import items per source module. Modules are emitted in
// lexicographic order, names sorted and deduplicated per module.
func Imports() Preset {
	return Preset{
		Name:    "imports",
		Accepts: []string{KindImport},
		Render: func(rc RenderContext, items []Item) (string, error) {
			modules := make(map[string]*moduleImports)
			for _, it := range items {
				var spec ImportSpec
				if err := decodeData(it.Data, &spec); err != nil {
					return "", &ViolationError{Code: ErrCodeInvalidData, Host: rc.Host, Slot: rc.Slot,
						Kind: it.Kind, Message: "import data is not an import spec", Err: err}
				}
				if spec.From == "" {
					return "", violation(ErrCodeInvalidData, rc, it.Kind, "import is missing its source module")
				}
				m := modules[spec.From]
				if m == nil {
					m = &moduleImports{
						defaults:   map[string]bool{},
						namespaces: map[string]bool{},
						named:      map[string]bool{},
						typeNamed:  map[string]bool{},
					}
					modules[spec.From] = m
				}
				switch {
				case spec.TypeOnly:
					for _, n := range spec.Named {
						m.typeNamed[strings.TrimSpace(n)] = true
					}
				default:
					if spec.Default != "" {
						m.defaults[spec.Default] = true
					}
					if spec.Namespace != "" {
						m.namespaces[spec.Namespace] = true
					}
					for _, n := range spec.Named {
						m.named[strings.TrimSpace(n)] = true
					}
				}
				if spec.SideEffect {
					m.sideEffect = true
				}
			}

			var lines []string
			for _, from := range sortedSet(keysOf(modules)) {
				lines = append(lines, modules[from].lines(from)...)
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func (m *moduleImports) lines(from string) []string {
	var lines []string
	quoted := "'" + from + "'"
	defaults := sortedSet(m.defaults)
	named := sortedNames(m.named)

	switch {
	case len(defaults) > 0 && len(named) > 0:
		lines = append(lines, fmt.Sprintf("import %s, { %s } from %s", defaults[0], strings.Join(named, ", "), quoted))
		defaults = defaults[1:]
	case len(named) > 0:
		lines = append(lines, fmt.Sprintf("import { %s } from %s", strings.Join(named, ", "), quoted))
	}
	for _, d := range defaults {
		lines = append(lines, fmt.Sprintf("import %s from %s", d, quoted))
	}
	for _, ns := range sortedSet(m.namespaces) {
		lines = append(lines, fmt.Sprintf("import * as %s from %s", ns, quoted))
	}
	if typed := sortedNames(m.typeNamed); len(typed) > 0 {
		lines = append(lines, fmt.Sprintf("import type { %s } from %s", strings.Join(typed, ", "), quoted))
	}
	if len(lines) == 0 && m.sideEffect {
		lines = append(lines, "import "+quoted)
	}
	return lines
}

// sortedNames orders "name as alias" entries by imported name.
func sortedNames(set map[string]bool) []string {
	names := sortedSet(set)
	slices.SortStableFunc(names, func(a, b string) int {
		return strings.Compare(importedName(a), importedName(b))
	})
	return names
}

func importedName(entry string) string {
	name, _, _ := strings.Cut(entry, " as ")
	return strings.TrimSpace(name)
}

// DeclarationSpec is one top-level declaration block.
type DeclarationSpec struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
	Code string `json:"code" yaml:"code"`
}

// Declarations renders declaration blocks sorted by declaration kind, then name.
func Declarations() Preset {
	return Preset{
		Name:    "declarations",
		Accepts: []string{KindDeclaration},
		Render: func(rc RenderContext, items []Item) (string, error) {
			decls := make([]DeclarationSpec, 0, len(items))
			for _, it := range items {
				var d DeclarationSpec
				if err := decodeData(it.Data, &d); err != nil {
					return "", &ViolationError{Code: ErrCodeInvalidData, Host: rc.Host, Slot: rc.Slot,
						Kind: it.Kind, Message: "declaration data is not a declaration spec", Err: err}
				}
				decls = append(decls, d)
			}
			slices.SortStableFunc(decls, func(a, b DeclarationSpec) int {
				if c := strings.Compare(a.Kind, b.Kind); c != 0 {
					return c
				}
				return strings.Compare(a.Name, b.Name)
			})
			blocks := make([]string, 0, len(decls))
			for _, d := range decls {
				blocks = append(blocks, strings.TrimRight(d.Code, "\n"))
			}
			return strings.Join(blocks, "\n"), nil
		},
	}
}

// RegistryOptions frames the rendered registry table.
type RegistryOptions struct {
	// Prefix is written before the JSON object, e.g. "export const routes = ".
	Prefix string
	// Suffix is written after the JSON object, e.g. ";".
	Suffix string
}

// RegistryTable renders a JSON object keyed by item key. Identical payloads
// under one key merge; differing payloads fail.
func RegistryTable(opts RegistryOptions) Preset {
	return Preset{
		Name:        "registry",
		Accepts:     []string{KindRegistry},
		KeyRequired: []string{KindRegistry},
		Dedupe: func(rc RenderContext, items []Item) ([]Item, error) {
			byKey := make(map[string]int, len(items))
			out := make([]Item, 0, len(items))
			for _, it := range items {
				if it.Key == "" {
					return nil, violation(ErrCodeMissingKey, rc, it.Kind,
						"registry entry requires a key (source=%s)", it.Source.Module)
				}
				idx, ok := byKey[it.Key]
				if !ok {
					byKey[it.Key] = len(out)
					out = append(out, it)
					continue
				}
				equal, err := ir.CanonicalEqual(out[idx].Data, it.Data)
				if err != nil {
					return nil, &ViolationError{Code: ErrCodeInvalidData, Host: rc.Host, Slot: rc.Slot,
						Kind: it.Kind, Message: fmt.Sprintf("registry entry %q is not JSON-serializable", it.Key), Err: err}
				}
				if !equal {
					return nil, violation(ErrCodeRegistryConflict, rc, it.Kind,
						"conflicting payloads for registry key %q (%s vs %s)",
						it.Key, out[idx].Source.Module, it.Source.Module)
				}
			}
			return out, nil
		},
		Render: func(rc RenderContext, items []Item) (string, error) {
			table := make(map[string]any, len(items))
			for _, it := range items {
				table[it.Key] = it.Data
			}
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			if err := enc.Encode(table); err != nil {
				return "", &ViolationError{Code: ErrCodeInvalidData, Host: rc.Host, Slot: rc.Slot,
					Kind: KindRegistry, Message: "registry table is not JSON-serializable", Err: err}
			}
			return opts.Prefix + strings.TrimRight(buf.String(), "\n") + opts.Suffix, nil
		},
	}
}

// decodeData converts loosely typed item data (maps from manifests) into a
// typed preset struct.
func decodeData(data any, out any) error {
	switch v := data.(type) {
	case ImportSpec:
		if p, ok := out.(*ImportSpec); ok {
			*p = v
			return nil
		}
	case *ImportSpec:
		if p, ok := out.(*ImportSpec); ok && v != nil {
			*p = *v
			return nil
		}
	case DeclarationSpec:
		if p, ok := out.(*DeclarationSpec); ok {
			*p = v
			return nil
		}
	case *DeclarationSpec:
		if p, ok := out.(*DeclarationSpec); ok && v != nil {
			*p = *v
			return nil
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func keysOf[V any](m map[string]V) map[string]bool {
	set := make(map[string]bool, len(m))
	for k := range m {
		set[k] = true
	}
	return set
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
