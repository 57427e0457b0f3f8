package hazard

import (
	"reflect"
	"testing"

	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/fwgraph"
	"github.com/tiger/reconfig-hazard-analyzer/internal/analyzer/record"
)

func buildGraph(edges [][2]record.NodeID, extraNodes ...record.NodeID) *fwgraph.Graph {
	g := fwgraph.New()
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	for _, n := range extraNodes {
		g.AddNode(n)
	}
	return g
}

func TestZeroEdgeGraphHasNoHazards(t *testing.T) {
	t.Parallel()

	g := buildGraph(nil, 0, 1, 2)
	m := Compute(g, []record.NodeID{0, 1, 2})
	if m.Cycles != 0 || m.PotentialDeps != 0 {
		t.Fatalf("metrics = %+v, want zero cycles and zero deps", m)
	}
}

func TestTwoNodeCycleBothUpdated(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{1, 2}, {2, 1}})
	m := Compute(g, []record.NodeID{1, 2})
	if m.Cycles != 1 {
		t.Fatalf("cycles = %d, want 1", m.Cycles)
	}
	if m.PotentialDeps != 2 {
		t.Fatalf("potential deps = %d, want 2 (each node reaches the other)", m.PotentialDeps)
	}
}

func TestSelfLoopIsOneCycle(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{3, 3}})
	if got := CountCycles(g); got != 1 {
		t.Fatalf("cycles = %d, want 1", got)
	}
}

func TestOverlappingCyclesCountedSeparately(t *testing.T) {
	t.Parallel()

	// 0->1->2->0 and the inner 0->1->0 share two nodes.
	g := buildGraph([][2]record.NodeID{{0, 1}, {1, 2}, {2, 0}, {1, 0}})
	if got := CountCycles(g); got != 2 {
		t.Fatalf("cycles = %d, want 2", got)
	}
}

func TestDisjointCycles(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{1, 2}, {2, 1}, {3, 4}, {4, 3}})
	if got := CountCycles(g); got != 2 {
		t.Fatalf("cycles = %d, want 2", got)
	}
}

func TestChainPotentialDeps(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{0, 1}, {1, 2}})

	if got := CountPotentialDeps(g, []record.NodeID{0, 1, 2}); got != 3 {
		t.Fatalf("deps = %d, want 3 (0 reaches two, 1 reaches one)", got)
	}
	if got := CountPotentialDeps(g, []record.NodeID{0, 2}); got != 1 {
		t.Fatalf("deps = %d, want 1 when the middle node is not updated", got)
	}
	if got := CountPotentialDeps(g, nil); got != 0 {
		t.Fatalf("deps = %d, want 0 for an empty updated set", got)
	}
}

func TestDescendantsExcludeSource(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{1, 2}, {2, 1}})
	if got := Descendants(g, 1); !reflect.DeepEqual(got, []record.NodeID{2}) {
		t.Fatalf("descendants = %v, want [2] (source excluded despite the cycle back)", got)
	}
}

func TestDiamondReachability(t *testing.T) {
	t.Parallel()

	g := buildGraph([][2]record.NodeID{{0, 1}, {0, 2}, {1, 3}, {2, 3}})
	if got := Descendants(g, 0); !reflect.DeepEqual(got, []record.NodeID{1, 2, 3}) {
		t.Fatalf("descendants = %v, want [1 2 3] with the join counted once", got)
	}
	if got := CountCycles(g); got != 0 {
		t.Fatalf("cycles = %d, want 0 for a DAG", got)
	}
}
