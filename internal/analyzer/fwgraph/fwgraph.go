package fwgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
)

// ErrEmptySnapshot marks a before/after forwarding state with no usable
// entries.
var ErrEmptySnapshot = errors.New("empty forwarding snapshot")

// Graph is a directed graph over forwarding nodes. Edges form a set: adding
// an edge twice is a no-op.
type Graph struct {
	nodes map[record.NodeID]struct{}
	succs map[record.NodeID]map[record.NodeID]struct{}
	preds map[record.NodeID]map[record.NodeID]struct{}
}

func New() *Graph {
	return &Graph{
		nodes: make(map[record.NodeID]struct{}),
		succs: make(map[record.NodeID]map[record.NodeID]struct{}),
		preds: make(map[record.NodeID]map[record.NodeID]struct{}),
	}
}

func (g *Graph) AddNode(n record.NodeID) {
	g.nodes[n] = struct{}{}
}

func (g *Graph) AddEdge(from, to record.NodeID) {
	g.AddNode(from)
	g.AddNode(to)
	if g.succs[from] == nil {
		g.succs[from] = make(map[record.NodeID]struct{})
	}
	g.succs[from][to] = struct{}{}
	if g.preds[to] == nil {
		g.preds[to] = make(map[record.NodeID]struct{})
	}
	g.preds[to][from] = struct{}{}
}

func (g *Graph) HasNode(n record.NodeID) bool {
	_, ok := g.nodes[n]
	return ok
}

func (g *Graph) HasEdge(from, to record.NodeID) bool {
	_, ok := g.succs[from][to]
	return ok
}

func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

func (g *Graph) NumEdges() int {
	total := 0
	for _, out := range g.succs {
		total += len(out)
	}
	return total
}

// Degree counts edges in both directions; a self-loop counts twice.
func (g *Graph) Degree(n record.NodeID) int {
	return len(g.succs[n]) + len(g.preds[n])
}

// Nodes returns all nodes in ascending id order.
func (g *Graph) Nodes() []record.NodeID {
	out := make([]record.NodeID, 0, len(g.nodes))
	for n := range g.nodes {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

// Succs returns the successors of n in ascending id order.
func (g *Graph) Succs(n record.NodeID) []record.NodeID {
	out := make([]record.NodeID, 0, len(g.succs[n]))
	for next := range g.succs[n] {
		out = append(out, next)
	}
	sortNodes(out)
	return out
}

// Build projects both forwarding tables onto one deterministically chosen
// destination prefix and returns the unioned change graph together with the
// updated-node set (total degree > 1).
func Build(before, after record.ForwardingTable) (*Graph, []record.NodeID, error) {
	prefix, err := SelectPrefix(before)
	if err != nil {
		return nil, nil, err
	}
	if len(after) == 0 {
		return nil, nil, fmt.Errorf("%w: after state has no nodes", ErrEmptySnapshot)
	}
	g := New()
	addProjection(g, before, prefix)
	addProjection(g, after, prefix)
	return g, UpdatedNodes(g), nil
}

// SelectPrefix picks the destination to project onto: the lexicographically
// smallest prefix key of the before state, so repeated runs over the same
// input always analyze the same destination.
func SelectPrefix(before record.ForwardingTable) (string, error) {
	if len(before) == 0 {
		return "", fmt.Errorf("%w: before state has no nodes", ErrEmptySnapshot)
	}
	prefix, found := "", false
	for _, routes := range before {
		for p := range routes {
			if !found || p < prefix {
				prefix, found = p, true
			}
		}
	}
	if !found {
		return "", fmt.Errorf("%w: before state has no destination prefix", ErrEmptySnapshot)
	}
	return prefix, nil
}

// addProjection adds each node's (node, first next-hop) edge for the prefix.
// Nodes without a usable next-hop still join the graph with degree 0. The
// drop terminal ends forwarding and never becomes a node.
func addProjection(g *Graph, table record.ForwardingTable, prefix string) {
	for node, routes := range table {
		g.AddNode(node)
		hops := routes[prefix]
		if len(hops) == 0 {
			continue
		}
		next := hops[0]
		if next == record.DropNextHop {
			continue
		}
		g.AddEdge(node, next)
	}
}

// UpdatedNodes returns the nodes whose total degree exceeds 1, ascending.
// A node that kept its single next-hop contributes one edge from each
// snapshot onto the same pair and stays at degree 1.
func UpdatedNodes(g *Graph) []record.NodeID {
	var updated []record.NodeID
	for n := range g.nodes {
		if g.Degree(n) > 1 {
			updated = append(updated, n)
		}
	}
	sortNodes(updated)
	return updated
}

func sortNodes(nodes []record.NodeID) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
}
