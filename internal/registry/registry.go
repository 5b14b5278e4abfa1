package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/slots"
)

// DefaultReservedPrefix marks owners that belong to core generators.
const DefaultReservedPrefix = "core:"

// Registry is the per-context store of registered hosts.
//
// Thread-safety model:
//   - Register, Unregister and Clear take the write lock
//   - Snapshot takes the read lock and returns a deep copy
//
// One Registry exists per build context; there is no process-wide instance.
type Registry struct {
	mu             sync.RWMutex
	reservedPrefix string
	logger         *slog.Logger
	// seq numbers Register calls. Values only break ties in deterministic
	// orderings and never decide data correctness.
	seq int64

	records map[string]*record
	paths   map[string]string // path -> host id
	pending map[string]*pendingBuffer
	history []Resolution
}

type record struct {
	spec          *host.Spec
	owners        map[string]bool
	reserved      bool
	channels      map[string][]slots.Entry
	contributions []contribution
	seq           int64
	fingerprint   string
}

// contribution remembers which host declared a contribution so it can be
// retracted when that host is unregistered.
type contribution struct {
	origin string
	slots.Contribution
}

type pendingBuffer struct {
	pushes        []slots.Entry
	channels      []string
	contributions []contribution
}

func (b *pendingBuffer) empty() bool {
	return len(b.pushes) == 0 && len(b.contributions) == 0
}

// Option configures a Registry.
type Option func(*Registry)

// WithReservedPrefix sets the owner prefix of the reserved namespace.
// An empty prefix disables reservation.
func WithReservedPrefix(prefix string) Option {
	return func(r *Registry) {
		r.reservedPrefix = prefix
	}
}

// WithLogger sets the logger used for registration diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		reservedPrefix: DefaultReservedPrefix,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.records = make(map[string]*record)
	r.paths = make(map[string]string)
	r.pending = make(map[string]*pendingBuffer)
	r.history = nil
}

// IsReserved reports whether owner belongs to the reserved namespace.
func (r *Registry) IsReserved(owner string) bool {
	return r.reservedPrefix != "" && strings.HasPrefix(owner, r.reservedPrefix)
}

// Register records a finalized declaration.
//
// Validation happens before any mutation: a refused declaration leaves the
// registry untouched.
func (r *Registry) Register(decl *host.Declaration) error {
	if decl == nil || decl.Spec == nil {
		return &ConflictError{Code: ErrCodeInvalid, Message: "declaration has no spec"}
	}
	if decl.Owner == "" {
		return &ConflictError{Code: ErrCodeInvalid, HostID: decl.Spec.ID, Path: decl.Spec.Path,
			Message: "declaration has no owner"}
	}
	spec := decl.Spec
	if spec.Mode() == host.ModeUnset || spec.Path == "" || spec.ID == "" {
		return &ConflictError{Code: ErrCodeInvalid, HostID: spec.ID, Path: spec.Path,
			Message: "declaration was not finalized"}
	}
	fp := fingerprint(spec)
	reserved := r.IsReserved(decl.Owner)

	r.mu.Lock()
	defer r.mu.Unlock()

	if boundID, ok := r.paths[spec.Path]; ok && boundID != spec.ID {
		bound := r.records[boundID]
		if bound.owners[decl.Owner] && bound.fingerprint == fp {
			r.logger.Debug("benign redeclaration ignored",
				"owner", decl.Owner, "path", spec.Path, "host", boundID, "declared_id", spec.ID)
			return nil
		}
		code := ErrCodePathConflict
		msg := fmt.Sprintf("path is bound to host %s", boundID)
		if bound.reserved != reserved {
			code = ErrCodeReservedOwner
			msg = fmt.Sprintf("owner %s cannot share path with %s", decl.Owner, strings.Join(sortedOwners(bound.owners), ","))
		}
		return &ConflictError{Code: code, HostID: spec.ID, Path: spec.Path,
			Owners: mergeOwners(bound.owners, decl.Owner), Message: msg}
	}

	rec, exists := r.records[spec.ID]
	if exists {
		if err := r.checkRedeclaration(rec, decl, reserved); err != nil {
			return err
		}
	}
	// Pushes must target valid ids; check before mutating.
	for _, p := range decl.Pushes {
		if p.Channel == "" || p.Target == "" {
			return &ConflictError{Code: ErrCodeInvalid, HostID: spec.ID, Path: spec.Path,
				Message: "push without channel or target"}
		}
	}

	r.seq++
	seq := r.seq
	if exists {
		rec.owners[decl.Owner] = true
		r.logger.Debug("host owner merged", "host", spec.ID, "owner", decl.Owner, "seq", seq)
	} else {
		rec = &record{
			spec:        spec.Clone(),
			owners:      map[string]bool{decl.Owner: true},
			reserved:    reserved,
			channels:    make(map[string][]slots.Entry),
			seq:         seq,
			fingerprint: fp,
		}
		r.records[spec.ID] = rec
		r.paths[spec.Path] = spec.ID
		r.resolvePending(spec.ID, rec, seq)
	}

	for _, c := range decl.Contributions {
		c.Item.Seq = seq
		if c.Target.Host == "" {
			c.Target.Host = spec.ID
		}
		r.deliverContribution(contribution{origin: spec.ID, Contribution: c})
	}
	for _, p := range decl.Pushes {
		r.deliverPush(p.Target, p.Channel, slots.Entry{Origin: p.Origin, Value: p.Value, Seq: p.Seq, RegSeq: seq})
	}
	return nil
}

func (r *Registry) checkRedeclaration(rec *record, decl *host.Declaration, reserved bool) error {
	spec := decl.Spec
	owners := mergeOwners(rec.owners, decl.Owner)
	if rec.reserved != reserved {
		return &ConflictError{Code: ErrCodeReservedOwner, HostID: spec.ID, Path: spec.Path, Owners: owners,
			Message: fmt.Sprintf("owner %s cannot share host with %s", decl.Owner, strings.Join(sortedOwners(rec.owners), ","))}
	}
	if rec.spec.Path != spec.Path {
		return &ConflictError{Code: ErrCodePathMismatch, HostID: spec.ID, Path: spec.Path, Owners: owners,
			Message: fmt.Sprintf("host is bound to path %s", rec.spec.Path)}
	}
	if reason, ok := compatible(rec.spec, spec); !ok {
		return &ConflictError{Code: ErrCodeIncompatible, HostID: spec.ID, Path: spec.Path, Owners: owners,
			Message: reason}
	}
	return nil
}

// resolvePending moves buffered entries addressed to id into rec.
func (r *Registry) resolvePending(id string, rec *record, seq int64) {
	buf, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	for i, e := range buf.pushes {
		ch := buf.channels[i]
		rec.channels[ch] = append(rec.channels[ch], e)
	}
	rec.contributions = append(rec.contributions, buf.contributions...)
	r.history = append(r.history, Resolution{
		Host: id, Seq: seq, Pushes: len(buf.pushes), Contributions: len(buf.contributions),
	})
	r.logger.Debug("pending entries resolved",
		"host", id, "pushes", len(buf.pushes), "contributions", len(buf.contributions))
}

func (r *Registry) buffer(target string) *pendingBuffer {
	buf, ok := r.pending[target]
	if !ok {
		buf = &pendingBuffer{}
		r.pending[target] = buf
	}
	return buf
}

func (r *Registry) deliverPush(target, channel string, e slots.Entry) {
	if rec, ok := r.records[target]; ok {
		rec.channels[channel] = append(rec.channels[channel], e)
		return
	}
	buf := r.buffer(target)
	buf.pushes = append(buf.pushes, e)
	buf.channels = append(buf.channels, channel)
}

func (r *Registry) deliverContribution(c contribution) {
	if rec, ok := r.records[c.Target.Host]; ok {
		rec.contributions = append(rec.contributions, c)
		return
	}
	buf := r.buffer(c.Target.Host)
	buf.contributions = append(buf.contributions, c)
}

// Unregister removes a host.
//
// The host's record and path binding are dropped. Pushes and contributions
// it originated are retracted from every store and from the pending buffer.
// Entries other hosts addressed to it go back to the pending buffer, so a
// later registration of the same id receives them again.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return &ConflictError{Code: ErrCodeUnknownHost, HostID: id, Message: "host is not registered"}
	}
	delete(r.records, id)
	delete(r.paths, rec.spec.Path)

	for _, ch := range slices.Sorted(maps.Keys(rec.channels)) {
		for _, e := range rec.channels[ch] {
			if e.Origin == id {
				continue
			}
			buf := r.buffer(id)
			buf.pushes = append(buf.pushes, e)
			buf.channels = append(buf.channels, ch)
		}
	}
	for _, c := range rec.contributions {
		if c.origin != id {
			r.buffer(id).contributions = append(r.buffer(id).contributions, c)
		}
	}

	for _, other := range r.records {
		for ch, entries := range other.channels {
			other.channels[ch] = slices.DeleteFunc(entries, func(e slots.Entry) bool { return e.Origin == id })
			if len(other.channels[ch]) == 0 {
				delete(other.channels, ch)
			}
		}
		other.contributions = slices.DeleteFunc(other.contributions, func(c contribution) bool { return c.origin == id })
	}
	for target, buf := range r.pending {
		if target == id {
			continue
		}
		var pushes []slots.Entry
		var chans []string
		for i, e := range buf.pushes {
			if e.Origin != id {
				pushes = append(pushes, e)
				chans = append(chans, buf.channels[i])
			}
		}
		buf.pushes, buf.channels = pushes, chans
		buf.contributions = slices.DeleteFunc(buf.contributions, func(c contribution) bool { return c.origin == id })
		if buf.empty() {
			delete(r.pending, target)
		}
	}
	r.logger.Debug("host unregistered", "host", id, "path", rec.spec.Path)
	return nil
}

// Clear discards all state. Registration sequences restart.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	r.seq = 0
}

// Pending returns the ids of unregistered hosts that have buffered entries, sorted.
func (r *Registry) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.pending))
}

// Snapshot returns a deep, sorted copy of the registry.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(r.records))
	hosts := make([]HostRecord, 0, len(ids))
	edgeSet := make(map[Edge]bool)
	deps := make(map[string]map[string]bool)
	addEdge := func(from, to string) {
		if from == "" || from == to {
			return
		}
		edgeSet[Edge{From: from, To: to}] = true
		if deps[from] == nil {
			deps[from] = make(map[string]bool)
		}
		deps[from][to] = true
	}

	for _, id := range ids {
		for _, entries := range r.records[id].channels {
			for _, e := range entries {
				addEdge(e.Origin, id)
			}
		}
	}
	for target, buf := range r.pending {
		for _, e := range buf.pushes {
			addEdge(e.Origin, target)
		}
	}

	for _, id := range ids {
		rec := r.records[id]
		channels := make(map[string][]slots.Entry, len(rec.channels))
		for ch, entries := range rec.channels {
			channels[ch] = slices.Clone(entries)
		}
		contribs := make([]slots.Contribution, len(rec.contributions))
		for i, c := range rec.contributions {
			contribs[i] = c.Contribution
		}
		hosts = append(hosts, HostRecord{
			ID:            id,
			Path:          rec.spec.Path,
			Spec:          rec.spec.Clone(),
			Owners:        sortedOwners(rec.owners),
			Reserved:      rec.reserved,
			Channels:      channels,
			Contributions: contribs,
			Dependencies:  slices.Sorted(maps.Keys(deps[id])),
			Seq:           rec.seq,
			Fingerprint:   rec.fingerprint,
		})
	}

	edges := make([]Edge, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := strings.Compare(a.From, b.From); c != 0 {
			return c
		}
		return strings.Compare(a.To, b.To)
	})

	graph := Graph{
		Hosts:   ids,
		Edges:   edges,
		History: slices.Clone(r.history),
	}
	return newSnapshot(hosts, graph)
}

func sortedOwners(set map[string]bool) []string {
	return slices.Sorted(maps.Keys(set))
}

func mergeOwners(set map[string]bool, owner string) []string {
	out := sortedOwners(set)
	if !set[owner] {
		out = append(out, owner)
		slices.Sort(out)
	}
	return out
}
