package runtime

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/writer"
)

// Status classifies a planned path.
type Status string

const (
	StatusAdded     Status = "added"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusRemoved   Status = "removed"
	// StatusSkipped marks a new path left alone because an unmanaged file
	// already exists there and the host's conflict policy is skip.
	StatusSkipped Status = "skipped"
)

// PlanEntry is the planned action for one output path.
type PlanEntry struct {
	Path   string `json:"path"`
	Host   string `json:"host,omitempty"`
	Status Status `json:"status"`
	Hash   string `json:"hash,omitempty"`
	Size   int64  `json:"size"`
	// Missing marks an unchanged path whose file is gone from disk.
	// Committing rewrites it.
	Missing bool `json:"missing,omitempty"`
}

// Plan is the classified result of one render.
type Plan struct {
	// Entries is sorted by path.
	Entries []PlanEntry             `json:"entries"`
	Cycles  []registry.CycleWarning `json:"cycles,omitempty"`
}

// Count returns the number of entries with status s.
func (p *Plan) Count(s Status) int {
	n := 0
	for _, e := range p.Entries {
		if e.Status == s {
			n++
		}
	}
	return n
}

// Paths returns the paths with status s, sorted.
func (p *Plan) Paths(s Status) []string {
	var out []string
	for _, e := range p.Entries {
		if e.Status == s {
			out = append(out, e.Path)
		}
	}
	return out
}

// Entry returns the entry for path.
func (p *Plan) Entry(path string) (PlanEntry, bool) {
	i, ok := slices.BinarySearchFunc(p.Entries, path, func(e PlanEntry, t string) int {
		return strings.Compare(e.Path, t)
	})
	if !ok {
		return PlanEntry{}, false
	}
	return p.Entries[i], true
}

// Changed reports whether committing the plan would touch the disk.
func (p *Plan) Changed() bool {
	for _, e := range p.Entries {
		if e.Status == StatusAdded || e.Status == StatusUpdated || e.Status == StatusRemoved || e.Missing {
			return true
		}
	}
	return false
}

// planInput is what a pass hands to the planner.
type planInput struct {
	snap    *registry.Snapshot
	renders []*rendered
	state   *writer.State
	// scope lists the hosts rendered by a partial pass; nil for a full pass.
	scope map[string]bool
}

// buildPlan flattens the rendered artifacts into one path map and
// classifies every path against the persisted state.
func (rt *Runtime) buildPlan(in planInput) (*Plan, map[string]*Artifact, error) {
	byPath := make(map[string]*Artifact)
	for _, r := range in.renders {
		for i := range r.artifacts {
			a := &r.artifacts[i]
			if prev, ok := byPath[a.Path]; ok {
				return nil, nil, conflict(a.Path, prev.Host, a.Host)
			}
			if in.scope != nil {
				if owner, ok := rt.pathHost[a.Path]; ok && owner != a.Host && !in.scope[owner] {
					return nil, nil, conflict(a.Path, owner, a.Host)
				}
			}
			byPath[a.Path] = a
		}
	}

	plan := &Plan{Entries: make([]PlanEntry, 0, len(byPath))}
	for p, a := range byPath {
		entry := PlanEntry{Path: p, Host: a.Host, Hash: a.Hash, Size: a.Size}
		prev, managed := in.state.Lookup(p)
		switch {
		case !managed:
			entry.Status = StatusAdded
			if rt.writer.Exists(p) {
				rec, _ := in.snap.Host(a.Host)
				switch rec.Spec.Conflict {
				case host.ConflictSkip:
					entry.Status = StatusSkipped
				case host.ConflictError:
					return nil, nil, &PlanConflictError{Path: p, Hosts: []string{a.Host},
						Message: "unmanaged file already exists"}
				}
			}
		case prev.Hash != a.Hash || prev.Size != a.Size:
			entry.Status = StatusUpdated
		default:
			entry.Status = StatusUnchanged
			entry.Missing = !rt.writer.Exists(p)
		}
		plan.Entries = append(plan.Entries, entry)
	}

	if rt.clean {
		for _, p := range rt.orphans(in, byPath) {
			plan.Entries = append(plan.Entries, PlanEntry{Path: p, Status: StatusRemoved})
		}
	}
	slices.SortFunc(plan.Entries, func(a, b PlanEntry) int { return strings.Compare(a.Path, b.Path) })
	return plan, byPath, nil
}

// orphans returns managed paths that the rendered hosts no longer produce.
// A partial pass only considers paths last produced by the hosts it rendered.
func (rt *Runtime) orphans(in planInput, next map[string]*Artifact) []string {
	present := make(map[string]bool, len(next))
	for p := range next {
		present[p] = true
	}
	var protected []string
	for _, h := range in.snap.Hosts {
		for _, ext := range h.Spec.ExternalWrites {
			if norm, err := host.NormalizePath(ext); err == nil {
				protected = append(protected, norm)
			}
		}
	}
	if in.scope == nil {
		return writer.Orphans(in.state, present, protected)
	}

	candidates := writer.NewState()
	for id := range in.scope {
		for _, p := range rt.hostPaths[id] {
			if e, ok := in.state.Lookup(p); ok {
				candidates.Managed[p] = e
			}
		}
	}
	return writer.Orphans(candidates, present, protected)
}

func conflict(path string, hosts ...string) *PlanConflictError {
	slices.Sort(hosts)
	hosts = slices.Compact(hosts)
	msg := "produced by more than one host"
	if len(hosts) == 1 {
		msg = "produced more than once by the same host"
	}
	return &PlanConflictError{Path: path, Hosts: hosts, Message: msg}
}

func (e PlanEntry) String() string {
	return fmt.Sprintf("%s %s", e.Status, e.Path)
}
