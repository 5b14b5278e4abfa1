package testutil

import (
	"slices"
	"sync"
	"time"
)

// ManualScheduler is a deterministic timer source for tests.
//
// Time only moves when Advance is called. Due callbacks run synchronously on
// the caller's goroutine, ordered by due time and then creation order, so a
// test that advances past a debounce delay observes the flush before
// Advance returns.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the internal lock held and may schedule new timers.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*manualTimer
}

type manualTimer struct {
	id  int
	due time.Duration
	fn  func()
}

// NewManualScheduler creates a scheduler at time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc schedules f to run once d has elapsed. The returned function
// cancels the timer and reports whether it was still pending.
func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &manualTimer{id: s.nextID, due: s.now + max(d, 0), fn: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		i := slices.Index(s.timers, t)
		if i < 0 {
			return false
		}
		s.timers = slices.Delete(s.timers, i, i+1)
		return true
	}
}

// Advance moves time forward by d and runs every callback that became due.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.popDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		s.mu.Unlock()
		next.fn()
	}
}

func (s *ManualScheduler) popDueLocked(target time.Duration) *manualTimer {
	best := -1
	for i, t := range s.timers {
		if t.due > target {
			continue
		}
		if best < 0 || t.due < s.timers[best].due || (t.due == s.timers[best].due && t.id < s.timers[best].id) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	t := s.timers[best]
	s.timers = slices.Delete(s.timers, best, best+1)
	return t
}

// Pending returns the number of scheduled timers.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Now returns the elapsed manual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
