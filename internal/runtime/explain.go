package runtime

import (
	"slices"
	"time"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/slots"
)

// ItemExplain describes one resolved slot item.
type ItemExplain struct {
	Kind    string           `json:"kind"`
	Key     string           `json:"key,omitempty"`
	Stage   slots.Stage      `json:"stage"`
	Order   int              `json:"order,omitempty"`
	InputID string           `json:"inputId,omitempty"`
	Source  slots.Provenance `json:"source"`
}

// SlotExplain describes one rendered slot.
type SlotExplain struct {
	Name    string        `json:"name"`
	Preset  string        `json:"preset,omitempty"`
	Patched bool          `json:"patched"`
	Items   []ItemExplain `json:"items"`
}

// HostExplain is the descriptive metadata of the last render of a host.
type HostExplain struct {
	ID           string        `json:"id"`
	Path         string        `json:"path"`
	Mode         string        `json:"mode"`
	Kind         string        `json:"kind,omitempty"`
	Format       string        `json:"format,omitempty"`
	Owners       []string      `json:"owners"`
	Observe      []string      `json:"observe,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Outputs      []string      `json:"outputs"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Dependents   []string      `json:"dependents,omitempty"`
	Slots        []SlotExplain `json:"slots,omitempty"`
	Reasons      []string      `json:"reasons,omitempty"`
	RenderedAt   time.Time     `json:"renderedAt"`
	DurationMS   float64       `json:"durationMs"`
}

// Explain returns what the most recent render of a host looked like.
// idOrPath is a host id, a host path or one of its output paths.
func (rt *Runtime) Explain(idOrPath string) (*HostExplain, error) {
	snap := rt.takeSnapshot()
	id := ""
	if rec, ok := snap.Lookup(idOrPath); ok {
		id = rec.ID
	} else if norm, err := host.NormalizePath(idOrPath); err == nil {
		rt.mu.Lock()
		owner, ok := rt.pathHost[norm]
		rt.mu.Unlock()
		if _, registered := snap.Host(owner); ok && registered {
			id = owner
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if id == "" {
		return nil, &StateError{Code: ErrCodeUnknownHost, Phase: rt.phase,
			Message: "explain: unknown host " + idOrPath}
	}
	ex, ok := rt.explained[id]
	if !ok {
		return nil, &StateError{Code: ErrCodeNotRendered, Phase: rt.phase,
			Message: "explain: host " + id + " has not been rendered"}
	}
	cp := *ex
	return &cp, nil
}

// recordRenders stores explain data for rendered hosts. A full pass also
// forgets hosts that are no longer registered.
func (rt *Runtime) recordRenders(snap *registry.Snapshot, renders []*rendered, full bool) {
	now := time.Now().UTC()
	dependents := snap.Graph.Downstream()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if full {
		for id := range rt.explained {
			if _, ok := snap.Host(id); !ok {
				delete(rt.explained, id)
			}
		}
	}
	for _, r := range renders {
		rec := r.host
		ex := &HostExplain{
			ID:           rec.ID,
			Path:         rec.Path,
			Mode:         rec.Spec.Mode().String(),
			Kind:         rec.Spec.Kind,
			Format:       rec.Spec.Format,
			Owners:       slices.Clone(rec.Owners),
			Observe:      slices.Clone(rec.Spec.Observe),
			Tags:         slices.Clone(rec.Spec.Tags),
			Dependencies: slices.Clone(rec.Dependencies),
			Dependents:   slices.Clone(dependents[rec.ID]),
			Reasons:      slices.Clone(r.reasons),
			RenderedAt:   now,
			DurationMS:   float64(r.duration.Microseconds()) / 1000,
		}
		for _, a := range r.artifacts {
			ex.Outputs = append(ex.Outputs, a.Path)
		}
		slices.Sort(ex.Outputs)
		ex.Slots = explainSlots(rec, r.slots)
		rt.explained[rec.ID] = ex
	}
}

func explainSlots(rec *registry.HostRecord, results []slots.SlotResult) []SlotExplain {
	if len(results) == 0 {
		return nil
	}
	specs := map[string]*slots.Spec{}
	if p, ok := rec.Spec.Payload.(*host.SlotsPayload); ok {
		specs = p.Slots
	}
	out := make([]SlotExplain, 0, len(results))
	for _, sr := range results {
		se := SlotExplain{Name: sr.Name, Patched: sr.Patched, Items: make([]ItemExplain, 0, len(sr.Items))}
		if spec, ok := specs[sr.Name]; ok {
			se.Preset = spec.Preset
		} else {
			se.Preset = slots.Snippets().Name
		}
		for _, it := range sr.Items {
			se.Items = append(se.Items, ItemExplain{
				Kind: it.Kind, Key: it.Key, Stage: it.Stage, Order: it.Order,
				InputID: it.InputID, Source: it.Source,
			})
		}
		out = append(out, se)
	}
	return out
}
