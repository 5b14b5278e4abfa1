package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_Reachable(t *testing.T) {
	g := Graph{
		Hosts: []string{"a", "b", "c", "d"},
		Edges: []Edge{{"a", "b"}, {"b", "d"}, {"c", "d"}},
	}
	assert.Equal(t, []string{"a", "b", "d"}, g.Reachable("a"))
	assert.Equal(t, []string{"c", "d"}, g.Reachable("c"))
	assert.Equal(t, []string{"d"}, g.Reachable("d"))
}

func TestGraph_Downstream(t *testing.T) {
	g := Graph{Edges: []Edge{{"a", "c"}, {"a", "b"}}}
	assert.Equal(t, map[string][]string{"a": {"b", "c"}}, g.Downstream())
}

func TestGraph_CyclesDAG(t *testing.T) {
	g := Graph{Hosts: []string{"a", "b", "c"}, Edges: []Edge{{"a", "b"}, {"b", "c"}}}
	assert.Empty(t, g.Cycles())
}

func TestGraph_Cycles(t *testing.T) {
	g := Graph{
		Hosts: []string{"a", "b", "c", "x", "y"},
		Edges: []Edge{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"x", "y"}, {"y", "x"}},
	}
	warnings := g.Cycles()
	require.Len(t, warnings, 2)
	assert.Equal(t, []string{"a", "b", "c", "a"}, warnings[0].Path)
	assert.Equal(t, []string{"x", "y", "x"}, warnings[1].Path)
	assert.Equal(t, "dependency cycle: a -> b -> c -> a", warnings[0].Message)
}

func TestGraph_ReachableTerminatesOnCycle(t *testing.T) {
	g := Graph{Edges: []Edge{{"a", "b"}, {"b", "a"}}}
	assert.Equal(t, []string{"a", "b"}, g.Reachable("a"))
}
