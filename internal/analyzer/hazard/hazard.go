package hazard

import (
	"sort"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/fwgraph"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
)

// Metrics are the per-run structural hazard indicators: cycles point at
// possible transient forwarding loops during the reconfiguration, potential
// dependencies at how many other changing nodes one change can reach.
type Metrics struct {
	Cycles        int
	PotentialDeps int
}

// Compute derives both hazard metrics from the change graph.
func Compute(g *fwgraph.Graph, updated []record.NodeID) Metrics {
	return Metrics{
		Cycles:        CountCycles(g),
		PotentialDeps: CountPotentialDeps(g, updated),
	}
}

// CountCycles counts the simple directed cycles of g: closed walks visiting
// no node twice except the endpoints. Each cycle is found exactly once,
// rooted at its smallest node id, by a path-marking search restricted to
// ids above the root. Enumeration is exponential in the number of simple
// paths in the worst case; change graphs keep out-degree at most 2 (one
// next-hop per snapshot), which keeps the search small in practice.
func CountCycles(g *fwgraph.Graph) int {
	count := 0
	onPath := make(map[record.NodeID]bool)

	var walk func(start, from record.NodeID)
	walk = func(start, from record.NodeID) {
		onPath[from] = true
		for _, next := range g.Succs(from) {
			switch {
			case next == start:
				count++
			case next > start && !onPath[next]:
				walk(start, next)
			}
		}
		onPath[from] = false
	}

	for _, start := range g.Nodes() {
		walk(start, start)
	}
	return count
}

// CountPotentialDeps sums, over every updated node, how many other updated
// nodes are reachable from it through one or more directed edges.
func CountPotentialDeps(g *fwgraph.Graph, updated []record.NodeID) int {
	updatedSet := make(map[record.NodeID]struct{}, len(updated))
	for _, n := range updated {
		updatedSet[n] = struct{}{}
	}
	total := 0
	for _, source := range updated {
		for _, node := range Descendants(g, source) {
			if _, ok := updatedSet[node]; ok {
				total++
			}
		}
	}
	return total
}

// Descendants returns every node reachable from source via at least one
// edge, in ascending id order. source itself is excluded even when a cycle
// leads back to it.
func Descendants(g *fwgraph.Graph, source record.NodeID) []record.NodeID {
	visited := map[record.NodeID]struct{}{source: {}}
	queue := []record.NodeID{source}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.Succs(node) {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	delete(visited, source)

	out := make([]record.NodeID, 0, len(visited))
	for n := range visited {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
