package manifest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/slots"
)

// Declarations builds one declaration per host, in manifest order.
func (m *Manifest) Declarations() ([]*host.Declaration, error) {
	out := make([]*host.Declaration, 0, len(m.Hosts))
	for i, h := range m.Hosts {
		decl, err := m.declare(h)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeHost, Path: m.Path,
				Message: fmt.Sprintf("hosts[%d] (%s): %v", i, h.Path, err)}
		}
		out = append(out, decl)
	}
	return out, nil
}

// Register declares every host of every manifest and registers it with reg.
// It stops at the first failure.
func Register(reg *registry.Registry, ms ...*Manifest) error {
	for _, m := range ms {
		decls, err := m.Declarations()
		if err != nil {
			return err
		}
		for _, d := range decls {
			if err := reg.Register(d); err != nil {
				return fmt.Errorf("%s: %w", m.Path, err)
			}
		}
	}
	return nil
}

func (m *Manifest) declare(h HostDecl) (*host.Declaration, error) {
	owner := h.Owner
	if owner == "" {
		owner = m.Owner
	}
	var opts []host.Option
	if len(m.Scope) > 0 {
		opts = append(opts, host.WithScope(m.Scope...))
	}

	d := host.Declare(owner, opts...)
	if h.Path != "" {
		d.Path(h.Path)
	}
	if h.ID != "" {
		d.ID(h.ID)
	}
	if h.Kind != "" {
		d.Kind(h.Kind)
	}
	if h.Format != "" {
		d.Format(h.Format)
	}
	d.Tags(h.Tags...)
	d.ExternalWrites(h.ExternalWrites...)
	if h.Conflict != "" {
		policy, err := host.ParseConflictPolicy(h.Conflict)
		if err != nil {
			return nil, err
		}
		d.Conflict(policy)
	}

	observe := make([]string, 0, len(h.Observe))
	for _, o := range h.Observe {
		observe = append(observe, WatchID(m.resolve(o)))
	}

	if h.Text != nil {
		watched, err := m.declareText(d, h.Text)
		if err != nil {
			return nil, err
		}
		observe = append(observe, watched...)
	}
	if h.CopyFile != nil {
		src := m.resolve(h.CopyFile.Source)
		d.CopyFile(src)
		observe = append(observe, WatchID(src))
	}
	if h.CopyDir != nil {
		observe = append(observe, m.declareCopyDir(d, h.CopyDir)...)
	}
	if h.Slots != nil {
		watched, err := m.declareSlots(d, h.Slots)
		if err != nil {
			return nil, err
		}
		observe = append(observe, watched...)
	}

	for _, p := range h.IR {
		var popts []host.PushOption
		if p.To != "" {
			popts = append(popts, host.ToHost(targetID(p.To)))
		}
		d.IR(p.Channel, p.Value, popts...)
	}

	slices.Sort(observe)
	d.Observe(slices.Compact(observe)...)
	return d.End()
}

func (m *Manifest) declareText(d *host.Draft, t *TextDecl) ([]string, error) {
	content, watched, err := m.content(t.Content, t.ContentFile, "content")
	if err != nil {
		return nil, err
	}
	tb := d.Text(content)
	if t.EOL != "" {
		eol, err := host.ParseEOL(t.EOL)
		if err != nil {
			return nil, err
		}
		tb.EOL(eol)
	}
	if t.Encoding != "" {
		enc, err := host.ParseEncoding(t.Encoding)
		if err != nil {
			return nil, err
		}
		tb.Encoding(enc)
	}
	return watched, nil
}

func (m *Manifest) declareCopyDir(d *host.Draft, c *CopyDirDecl) []string {
	src := m.resolve(c.Source)
	cb := d.CopyDir(src).Filter(c.Filter...).Ignore(c.Ignore...)
	if c.StripPrefix != "" {
		prefix := strings.Trim(path.Clean(filepath.ToSlash(c.StripPrefix)), "/") + "/"
		cb.Remap(func(rel string) (string, bool) {
			if !strings.HasPrefix(rel, prefix) {
				return "", false
			}
			return strings.TrimPrefix(rel, prefix), true
		})
	}
	if len(c.Filter) == 0 {
		return []string{WatchID(src)}
	}
	ids := make([]string, 0, len(c.Filter))
	for _, f := range c.Filter {
		ids = append(ids, WatchID(filepath.Join(src, filepath.FromSlash(f))))
	}
	return ids
}

func (m *Manifest) declareSlots(d *host.Draft, s *SlotsDecl) ([]string, error) {
	template, watched, err := m.content(s.Template, s.TemplateFile, "template")
	if err != nil {
		return nil, err
	}
	sb := d.Slots(template)
	if s.Detect {
		sb.DetectSlots()
	}
	if s.IgnoreMissing {
		sb.IgnoreMissingMarkers()
	}

	names := make([]string, 0, len(s.Slots))
	for name := range s.Slots {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		decl := s.Slots[name]
		preset, err := presetFor(decl)
		if err != nil {
			return nil, fmt.Errorf("slot %q: %w", name, err)
		}
		slot := sb.Slot(name).Accepts(decl.Accepts...)
		if decl.KeyRequired != nil {
			slot.KeyRequired(decl.KeyRequired...)
		}
		for _, in := range decl.Inputs {
			slot.Input(slots.Input{ID: in.ID, Channel: in.Channel, Kind: in.Kind, Source: in.Source})
		}
		slot.Preset(preset)
	}

	for i, it := range s.Add {
		item, err := toItem(it)
		if err != nil {
			return nil, fmt.Errorf("add[%d]: %w", i, err)
		}
		sb.Add(it.Slot, item)
	}
	return watched, nil
}

func presetFor(s SlotDecl) (slots.Preset, error) {
	name := s.Preset
	if name == "" {
		name = "snippet"
	}
	if name == "registry" {
		return slots.RegistryTable(slots.RegistryOptions{Prefix: s.Prefix, Suffix: s.Suffix}), nil
	}
	p, ok := slots.PresetByName(name)
	if !ok {
		return slots.Preset{}, fmt.Errorf("unknown preset %q", name)
	}
	return p, nil
}

func toItem(it ItemDecl) (slots.Item, error) {
	stage, err := slots.ParseStage(it.Stage)
	if err != nil {
		return slots.Item{}, err
	}
	kind := it.Kind
	if kind == "" {
		kind = slots.KindSnippet
	}
	return slots.Item{
		Kind:   kind,
		Data:   it.Data,
		Key:    it.Key,
		Stage:  stage,
		Order:  it.Order,
		Source: slots.Provenance{Module: it.Module, Version: it.Version},
		Meta:   it.Meta,
	}, nil
}

// content resolves an inline value or a file reference. File references
// become producers keyed by absolute path and are returned as watch ids.
func (m *Manifest) content(inline *string, file, field string) (host.Content, []string, error) {
	switch {
	case inline != nil && file != "":
		return host.Content{}, nil, fmt.Errorf("%s and %s_file are mutually exclusive", field, field)
	case inline != nil:
		return host.Literal(*inline), nil, nil
	case file != "":
		abs := m.resolve(file)
		return fileContent(abs), []string{WatchID(abs)}, nil
	default:
		// The builder reports the missing content.
		return host.Content{}, nil, nil
	}
}

func fileContent(abs string) host.Content {
	return host.Producer("file:"+filepath.ToSlash(abs), func(ctx context.Context, env host.Env) (string, error) {
		data, err := os.ReadFile(abs)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// resolve anchors p at the manifest directory.
func (m *Manifest) resolve(p string) string {
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

func targetID(to string) string {
	if id, err := host.IDForPath(to); err == nil {
		return id
	}
	return to
}
