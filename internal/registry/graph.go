package registry

import (
	"fmt"
	"slices"
	"strings"
)

// Edge is a dependency from the host that pushed IR to the host that
// consumes it. When From changes, To must re-render.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Resolution records pending entries delivered when their target registered.
type Resolution struct {
	Host          string `json:"host"`
	Seq           int64  `json:"seq"`
	Pushes        int    `json:"pushes"`
	Contributions int    `json:"contributions"`
}

// Graph is the dependency view of a snapshot.
type Graph struct {
	// Hosts lists every registered host id, sorted.
	Hosts []string `json:"hosts"`
	// Edges is deduplicated and sorted by (From, To).
	Edges   []Edge       `json:"edges"`
	History []Resolution `json:"history,omitempty"`
}

// CycleWarning describes a dependency cycle between hosts.
//
// Cycles are warnings, not errors: incremental passes still terminate
// because propagation marks each host at most once.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// Downstream maps each host id to the hosts that depend on it, sorted.
func (g Graph) Downstream() map[string][]string {
	out := make(map[string][]string)
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e.To)
	}
	for k := range out {
		slices.Sort(out[k])
		out[k] = slices.Compact(out[k])
	}
	return out
}

// Reachable returns the given hosts plus every host transitively downstream
// of them, in breadth-first order. Each host appears once.
func (g Graph) Reachable(start ...string) []string {
	down := g.Downstream()
	seen := make(map[string]bool, len(start))
	var order []string
	queue := append([]string(nil), start...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
		queue = append(queue, down[id]...)
	}
	return order
}

// Cycles returns one warning per strongly connected component with more
// than one host, in a stable order.
func (g Graph) Cycles() []CycleWarning {
	down := g.Downstream()
	sccs := tarjanSCC(g.nodes(), down)

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		path := cyclePath(scc, down)
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> ")),
		})
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// nodes returns every host mentioned by the graph, sorted, so that the
// traversal is deterministic.
func (g Graph) nodes() []string {
	set := make(map[string]bool, len(g.Hosts))
	for _, h := range g.Hosts {
		set[h] = true
	}
	for _, e := range g.Edges {
		set[e.From] = true
		set[e.To] = true
	}
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in the given order; successors in adjacency order.
func tarjanSCC(nodes []string, adj map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks the component from its smallest id, always taking the
// smallest unvisited successor inside the component, and closes the loop.
func cyclePath(scc []string, adj map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}
	start := slices.Min(scc)
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for len(path) < len(scc) {
		next := ""
		for _, w := range adj[current] {
			if members[w] && !visited[w] {
				next = w
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		visited[next] = true
		current = next
	}
	return append(path, start)
}
