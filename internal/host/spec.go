package host

import (
	"maps"

	"github.com/roach88/hostgen/internal/slots"
)

// Spec is an immutable host declaration.
type Spec struct {
	ID     string
	Path   string
	Kind   string
	Format string
	// Observe lists watch ids the runtime subscribes to for this host.
	Observe []string
	Tags    []string
	// ExternalWrites lists paths written by external tools; they are never
	// removed as orphans.
	ExternalWrites []string
	Conflict       ConflictPolicy
	Payload        Payload
}

// Mode returns the payload's mode.
func (s *Spec) Mode() Mode {
	if s == nil || s.Payload == nil {
		return ModeUnset
	}
	return s.Payload.Mode()
}

// Clone returns a copy whose slices, maps and payload can be modified
// without affecting s. Functions and item data are shared.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	out := *s
	out.Observe = append([]string(nil), s.Observe...)
	out.Tags = append([]string(nil), s.Tags...)
	out.ExternalWrites = append([]string(nil), s.ExternalWrites...)
	switch p := s.Payload.(type) {
	case *TextPayload:
		cp := *p
		out.Payload = &cp
	case *CopyFilePayload:
		cp := *p
		out.Payload = &cp
	case *CopyDirPayload:
		cp := *p
		cp.Filter = append([]string(nil), p.Filter...)
		cp.Ignore = append([]string(nil), p.Ignore...)
		out.Payload = &cp
	case *SlotsPayload:
		cp := *p
		cp.Slots = make(map[string]*slots.Spec, len(p.Slots))
		for name, spec := range p.Slots {
			cp.Slots[name] = spec.Clone()
		}
		out.Payload = &cp
	}
	return &out
}

// Push is a value pushed onto a named IR channel of a target host.
type Push struct {
	Origin  string
	Target  string
	Channel string
	Value   any
	// Seq is strictly increasing per draft.
	Seq int64
}

// Declaration is the finalized output of a Draft.
type Declaration struct {
	Owner         string
	Spec          *Spec
	Contributions []slots.Contribution
	Pushes        []Push
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}
