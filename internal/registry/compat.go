package registry

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/ir"
)

// compatible checks that b may share a host already declared as a.
// It returns a description of the first mismatch.
func compatible(a, b *host.Spec) (string, bool) {
	if a.Mode() != b.Mode() {
		return fmt.Sprintf("mode %s differs from registered mode %s", b.Mode(), a.Mode()), false
	}
	switch pa := a.Payload.(type) {
	case *host.TextPayload:
		pb := b.Payload.(*host.TextPayload)
		if !pa.Content.Equal(pb.Content) {
			return fmt.Sprintf("text content %s differs from %s", pb.Content.Describe(), pa.Content.Describe()), false
		}
	case *host.CopyFilePayload:
		pb := b.Payload.(*host.CopyFilePayload)
		if filepath.Clean(pa.Source) != filepath.Clean(pb.Source) {
			return fmt.Sprintf("copy source %q differs from %q", pb.Source, pa.Source), false
		}
	case *host.CopyDirPayload:
		pb := b.Payload.(*host.CopyDirPayload)
		if filepath.Clean(pa.Source) != filepath.Clean(pb.Source) {
			return fmt.Sprintf("copy source %q differs from %q", pb.Source, pa.Source), false
		}
		if !sameSet(pa.Filter, pb.Filter) || !sameSet(pa.Ignore, pb.Ignore) {
			return "copyDir filter or ignore globs differ", false
		}
	case *host.SlotsPayload:
		pb := b.Payload.(*host.SlotsPayload)
		if !pa.Template.Equal(pb.Template) {
			return fmt.Sprintf("template %s differs from %s", pb.Template.Describe(), pa.Template.Describe()), false
		}
		if reason, ok := sameSlotShape(pa, pb); !ok {
			return reason, false
		}
	}
	return "", true
}

func sameSlotShape(a, b *host.SlotsPayload) (string, bool) {
	an, bn := a.SlotNames(), b.SlotNames()
	if !slices.Equal(an, bn) {
		return fmt.Sprintf("slot names %v differ from %v", bn, an), false
	}
	for _, name := range an {
		sa, sb := a.Slots[name], b.Slots[name]
		if !sameSet(sa.Accepts, sb.Accepts) {
			return fmt.Sprintf("slot %q accepted kinds %v differ from %v", name, sb.Accepts, sa.Accepts), false
		}
		if len(sa.Inputs) != len(sb.Inputs) {
			return fmt.Sprintf("slot %q has %d inputs, registered %d", name, len(sb.Inputs), len(sa.Inputs)), false
		}
	}
	return "", true
}

func sameSet(a, b []string) bool {
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(slices.Compact(as), slices.Compact(bs))
}

// fingerprint identifies a spec's shareable shape independent of its host
// id. Two specs with the same fingerprint are compatible; the converse does
// not hold for producers without keys.
func fingerprint(s *host.Spec) string {
	shape := map[string]any{
		"path": s.Path,
		"mode": s.Mode().String(),
	}
	switch p := s.Payload.(type) {
	case *host.TextPayload:
		shape["content"] = p.Content.Describe()
	case *host.CopyFilePayload:
		shape["source"] = filepath.Clean(p.Source)
	case *host.CopyDirPayload:
		shape["source"] = filepath.Clean(p.Source)
		shape["filter"] = toAny(sortedCopy(p.Filter))
		shape["ignore"] = toAny(sortedCopy(p.Ignore))
	case *host.SlotsPayload:
		shape["template"] = p.Template.Describe()
		slotShapes := map[string]any{}
		for name, spec := range p.Slots {
			slotShapes[name] = map[string]any{
				"accepts": toAny(sortedCopy(spec.Accepts)),
				"inputs":  len(spec.Inputs),
			}
		}
		shape["slots"] = slotShapes
	}
	fp, err := ir.Fingerprint(shape)
	if err != nil {
		// shape is built from strings and ints only
		panic(err)
	}
	return fp
}

func sortedCopy(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return out
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
