// Package watch defines the watch dependency contract and its file-system
// implementation.
//
// A Source is subscribed with an Emitter and returns a Disposer. The source
// calls Emit with a reason tag whenever something the subscriber depends on
// changed. Disposers are safe to call more than once; only the first call
// unsubscribes.
package watch

import (
	"fmt"
	"slices"
	"sync"
)

// Emitter receives change notifications.
type Emitter interface {
	Emit(reason string)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(reason string)

// Emit calls f(reason).
func (f EmitterFunc) Emit(reason string) { f(reason) }

// Disposer cancels a subscription.
type Disposer func()

// Source is anything that can be watched.
type Source interface {
	Subscribe(e Emitter) (Disposer, error)
}

// Once wraps d so that only the first call has an effect.
func Once(d Disposer) Disposer {
	if d == nil {
		return func() {}
	}
	var once sync.Once
	return func() { once.Do(d) }
}

// Set resolves watch ids to sources.
type Set struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{sources: make(map[string]Source)}
}

// Add binds id to src, replacing any previous binding.
func (s *Set) Add(id string, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[id] = src
}

// Resolve returns the source bound to id.
func (s *Set) Resolve(id string) (Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("unknown watch id %q", id)
	}
	return src, nil
}

// IDs returns the bound ids, sorted.
func (s *Set) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
