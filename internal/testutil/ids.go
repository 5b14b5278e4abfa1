package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "<prefix>-1", "<prefix>-2", ... for tests that
// need deterministic run ids.
//
// Thread-safety: safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix means "run".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
