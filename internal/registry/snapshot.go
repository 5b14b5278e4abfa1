package registry

import (
	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/slots"
)

// HostRecord is the read-only view of one registered host.
//
// Slices and maps are private copies. Pushed values and item data are
// shared with the registry and must be treated as immutable.
type HostRecord struct {
	ID       string
	Path     string
	Spec     *host.Spec
	Owners   []string
	Reserved bool
	// Channels holds the IR store in per-channel arrival order.
	Channels      map[string][]slots.Entry
	Contributions []slots.Contribution
	// Dependencies lists hosts this host pushed IR to, sorted.
	Dependencies []string
	Seq          int64
	// Fingerprint hashes the host's declared shape.
	Fingerprint string
}

// SlotRequest builds the composition request for a slots-mode host.
// template is the resolved template text.
func (r *HostRecord) SlotRequest(template string) (slots.Request, bool) {
	p, ok := r.Spec.Payload.(*host.SlotsPayload)
	if !ok {
		return slots.Request{}, false
	}
	return slots.Request{
		Host:          r.ID,
		Owners:        r.Owners,
		Template:      template,
		Slots:         p.Slots,
		Contributions: r.Contributions,
		Channels:      r.Channels,
		Markers:       p.Markers,
	}, true
}

// Snapshot is an immutable, sorted copy of the registry.
type Snapshot struct {
	// Hosts is sorted by id.
	Hosts  []HostRecord
	Graph  Graph
	byID   map[string]int
	byPath map[string]int
}

// Len returns the number of hosts.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Hosts)
}

// Host returns the record with the given id.
func (s *Snapshot) Host(id string) (*HostRecord, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.Hosts[i], true
}

// HostByPath returns the record bound to path.
func (s *Snapshot) HostByPath(path string) (*HostRecord, bool) {
	if s == nil {
		return nil, false
	}
	norm, err := host.NormalizePath(path)
	if err != nil {
		return nil, false
	}
	i, ok := s.byPath[norm]
	if !ok {
		return nil, false
	}
	return &s.Hosts[i], true
}

// Lookup resolves a host id first, then an output path.
func (s *Snapshot) Lookup(idOrPath string) (*HostRecord, bool) {
	if r, ok := s.Host(idOrPath); ok {
		return r, true
	}
	return s.HostByPath(idOrPath)
}

// IDs returns every host id, sorted.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.Graph.Hosts...)
}

func newSnapshot(hosts []HostRecord, graph Graph) *Snapshot {
	s := &Snapshot{
		Hosts:  hosts,
		Graph:  graph,
		byID:   make(map[string]int, len(hosts)),
		byPath: make(map[string]int, len(hosts)),
	}
	for i, h := range hosts {
		s.byID[h.ID] = i
		s.byPath[h.Path] = i
	}
	return s
}
