package network

import (
	"testing"

	"roadmatch/internal/geo"
)

// buildTwoComponents builds a 3-edge triangle (nodes 0,10,5 roughly) plus an
// unreachable 1-edge fragment far away.
func buildTwoComponents(t *testing.T) *Network {
	t.Helper()
	b := NewBuilder(testProjector(), NetworkMeta{})
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 10, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 10, Y: 0}, {X: 5, Y: 10}}, 10)
	b.AddEdge([]geo.Point{{X: 5, Y: 10}, {X: 0, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 1000, Y: 1000}, {X: 1010, Y: 1000}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func TestLargestComponentKeepsBiggerFragment(t *testing.T) {
	n := buildTwoComponents(t)
	keep := n.LargestComponent()
	if len(keep) != n.NumEdges() {
		t.Fatalf("expected one keep flag per edge, got %d for %d edges", len(keep), n.NumEdges())
	}
	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}
	if kept != 3 {
		t.Fatalf("expected the 3-edge triangle to be kept, got %d edges kept", kept)
	}
	if keep[3] {
		t.Fatal("expected the isolated 2-node fragment to be dropped")
	}
}

func TestFilterToLargestComponentRebuildsNetwork(t *testing.T) {
	n := buildTwoComponents(t)
	filtered, err := n.FilterToLargestComponent()
	if err != nil {
		t.Fatalf("FilterToLargestComponent: %v", err)
	}
	if filtered.NumEdges() != 3 {
		t.Fatalf("expected 3 edges after filtering, got %d", filtered.NumEdges())
	}
	if filtered.NumNodes() != 3 {
		t.Fatalf("expected 3 nodes after filtering, got %d", filtered.NumNodes())
	}
}

func TestLargestComponentEmptyNetwork(t *testing.T) {
	b := NewBuilder(testProjector(), NetworkMeta{})
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if keep := n.LargestComponent(); keep != nil {
		t.Fatalf("expected nil keep mask for an empty network, got %v", keep)
	}
}
