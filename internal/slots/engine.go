package slots

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hostgen/internal/marker"
)

// MarkerPolicy controls what happens when a declared slot has no marker.
type MarkerPolicy int

const (
	// MarkerRequired fails composition when a slot's marker is missing.
	MarkerRequired MarkerPolicy = iota
	// MarkerIgnoreMissing renders the slot but leaves the template untouched.
	MarkerIgnoreMissing
)

// Request is everything composition needs for one host.
// Contributions must already be filtered to this host.
type Request struct {
	Host          string
	Owners        []string
	Template      string
	Slots         map[string]*Spec
	Contributions []Contribution
	Channels      map[string][]Entry
	Markers       MarkerPolicy
}

// SlotResult is the resolved state of one slot.
type SlotResult struct {
	Name   string
	Items  []Item
	Output string
	// Patched is false when the marker was missing and the policy ignored it.
	Patched bool
}

// Result is the composed template plus per-slot detail.
type Result struct {
	Content string
	Slots   []SlotResult
}

// Compose renders every slot of the request and patches the results into
// the template. Slots are processed in name order.
func Compose(ctx context.Context, req Request) (*Result, error) {
	names := make([]string, 0, len(req.Slots))
	for name := range req.Slots {
		names = append(names, name)
	}
	slices.Sort(names)

	type patch struct {
		start, end int
		text       string
	}
	var patches []patch

	result := &Result{Slots: make([]SlotResult, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := req.Slots[name]
		rc := RenderContext{Host: req.Host, Slot: name}

		items, err := resolveItems(rc, req, spec)
		if err != nil {
			return nil, err
		}
		if spec.Render == nil {
			return nil, violation(ErrCodeMissingRender, rc, "", "slot has no render function")
		}
		output, err := spec.Render(rc, items)
		if err != nil {
			if IsViolation(err, "") {
				return nil, err
			}
			return nil, &ViolationError{Code: ErrCodeCallbackFailed, Host: rc.Host, Slot: rc.Slot,
				Message: "render failed", Err: err}
		}

		sr := SlotResult{Name: name, Items: items, Output: output}
		found := marker.Find(req.Template, name)
		switch {
		case len(found) > 1:
			return nil, violation(ErrCodeDuplicateMarker, rc, "",
				"marker for slot %q appears more than once (%d occurrences)", name, len(found))
		case len(found) == 0:
			if req.Markers != MarkerIgnoreMissing {
				return nil, violation(ErrCodeMarkerNotFound, rc, "", "marker not found for slot %q", name)
			}
		default:
			m := found[0]
			patches = append(patches, patch{start: m.Start, end: m.End, text: marker.Indent(output, m.Indent)})
			sr.Patched = true
		}
		result.Slots = append(result.Slots, sr)
	}

	slices.SortFunc(patches, func(a, b patch) int { return a.start - b.start })
	var b strings.Builder
	pos := 0
	for _, p := range patches {
		b.WriteString(req.Template[pos:p.start])
		b.WriteString(p.text)
		pos = p.end
	}
	b.WriteString(req.Template[pos:])
	result.Content = b.String()
	return result, nil
}

func resolveItems(rc RenderContext, req Request, spec *Spec) ([]Item, error) {
	items, err := gather(rc, req, spec)
	if err != nil {
		return nil, err
	}
	if err := checkAccepted(rc, spec, items); err != nil {
		return nil, err
	}

	if spec.Dedupe != nil {
		items, err = spec.Dedupe(rc, items)
	} else {
		items, err = spec.dedupeFirstByKey(rc, items)
	}
	if err != nil {
		if !IsViolation(err, "") {
			err = &ViolationError{Code: ErrCodeCallbackFailed, Host: rc.Host, Slot: rc.Slot, Message: "dedupe failed", Err: err}
		}
		return nil, err
	}

	if spec.Sort != nil {
		slices.SortStableFunc(items, spec.Sort)
	} else {
		sortItems(items)
	}

	if spec.Map != nil {
		mapped := make([]Item, 0, len(items))
		for _, it := range items {
			out, err := spec.Map(it)
			if err != nil {
				return nil, &ViolationError{Code: ErrCodeCallbackFailed, Host: rc.Host, Slot: rc.Slot,
					Kind: it.Kind, Message: "map failed", Err: err}
			}
			if out != nil {
				mapped = append(mapped, *out)
			}
		}
		items = mapped
		if err := checkAccepted(rc, spec, items); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// gather collects direct contributions in contribution order, then the
// items derived from each input in declaration order.
func gather(rc RenderContext, req Request, spec *Spec) ([]Item, error) {
	defaultModule := ""
	if len(req.Owners) > 0 {
		defaultModule = req.Owners[0]
	}

	var items []Item
	for _, c := range req.Contributions {
		if c.Target.Slot != rc.Slot {
			continue
		}
		if c.Guard != nil && !c.Guard() {
			continue
		}
		it := c.Item
		if it.Source.Module == "" {
			it.Source.Module = defaultModule
		}
		items = append(items, it)
	}

	for _, in := range spec.Inputs {
		module := in.Source
		if module == "" {
			module = defaultModule
		}
		for idx, entry := range req.Channels[in.ChannelName()] {
			if in.Where != nil && !in.Where(entry.Value) {
				continue
			}
			var produced []Item
			if in.Map != nil {
				mapped, err := in.Map(entry.Value, idx)
				if err != nil {
					return nil, &ViolationError{Code: ErrCodeCallbackFailed, Host: rc.Host, Slot: rc.Slot,
						Message: fmt.Sprintf("input %q map failed", in.ID), Err: err}
				}
				produced = mapped
			} else {
				kind := in.Kind
				if kind == "" {
					kind = KindSnippet
				}
				produced = []Item{{Kind: kind, Data: entry.Value, Key: defaultInputKey(kind, in.ID, idx, entry.Value)}}
			}
			for _, it := range produced {
				if it.InputID == "" {
					it.InputID = in.ID
				}
				if it.Source.Module == "" {
					it.Source.Module = module
				}
				if it.Seq == 0 {
					it.Seq = entry.RegSeq
				}
				items = append(items, it)
			}
		}
	}
	return items, nil
}

// defaultInputKey keys a default-mapped input item. Registry entries use the
// "key" field of a map payload when present. Otherwise the channel index is
// zero padded so key order matches channel arrival order.
func defaultInputKey(kind, id string, idx int, value any) string {
	if kind == KindRegistry {
		if m, ok := value.(map[string]any); ok {
			if k, ok := m["key"].(string); ok && k != "" {
				return k
			}
		}
	}
	return fmt.Sprintf("%s:%08d", id, idx)
}

func checkAccepted(rc RenderContext, spec *Spec, items []Item) error {
	for _, it := range items {
		if !spec.AcceptsKind(it.Kind) {
			return violation(ErrCodeKindNotAccepted, rc, it.Kind,
				"kind %q is not accepted (accepts %s)", it.Kind, strings.Join(spec.Accepts, ", "))
		}
	}
	return nil
}
