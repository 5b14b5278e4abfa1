package testutil

import (
	"sync"

	"github.com/roach88/hostgen/internal/watch"
)

// ManualSource is a watch.Source driven by the test.
//
// Thread-safety: safe for concurrent use.
type ManualSource struct {
	mu       sync.Mutex
	nextID   int
	emitters map[int]watch.Emitter
	disposed int
	// Err, when set, is returned by Subscribe.
	Err error
}

// NewManualSource creates a source with no subscribers.
func NewManualSource() *ManualSource {
	return &ManualSource{emitters: make(map[int]watch.Emitter)}
}

// Subscribe implements watch.Source.
func (s *ManualSource) Subscribe(e watch.Emitter) (watch.Disposer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.nextID++
	id := s.nextID
	s.emitters[id] = e
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.emitters[id]; ok {
			delete(s.emitters, id)
		}
		s.disposed++
	}, nil
}

// Emit notifies every current subscriber.
func (s *ManualSource) Emit(reason string) {
	s.mu.Lock()
	targets := make([]watch.Emitter, 0, len(s.emitters))
	for i := 1; i <= s.nextID; i++ {
		if e, ok := s.emitters[i]; ok {
			targets = append(targets, e)
		}
	}
	s.mu.Unlock()
	for _, e := range targets {
		e.Emit(reason)
	}
}

// Subscribers returns the number of live subscriptions.
func (s *ManualSource) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emitters)
}

// Disposed returns how many times a disposer was invoked.
func (s *ManualSource) Disposed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
