package shape

import (
	"testing"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
	"roadmatch/internal/network"
)

func testNetwork(t *testing.T) *network.Network {
	t.Helper()
	proj := coordproj.NewAffineProjector(0, 0, coordproj.Offset{})
	b := network.NewBuilder(proj, network.NetworkMeta{})
	// Edge 0: (0,0) -> (100,0)
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, 10)
	// Edge 1: (100,0) -> (100,100)
	b.AddEdge([]geo.Point{{X: 100, Y: 0}, {X: 100, Y: 100}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func TestCombineShapeNoPredecessor(t *testing.T) {
	n := testNetwork(t)
	poly, err := CombineShape(n, 0, nil, false, false)
	if err != nil {
		t.Fatalf("CombineShape: %v", err)
	}
	want := []geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}
	if len(poly) != len(want) || poly[0] != want[0] || poly[1] != want[1] {
		t.Fatalf("poly = %v, want %v", poly, want)
	}
}

func TestCombineShapeReversed(t *testing.T) {
	n := testNetwork(t)
	poly, err := CombineShape(n, 0, nil, true, false)
	if err != nil {
		t.Fatalf("CombineShape: %v", err)
	}
	want := []geo.Point{{X: 100, Y: 0}, {X: 0, Y: 0}}
	if poly[0] != want[0] || poly[1] != want[1] {
		t.Fatalf("poly = %v, want %v", poly, want)
	}
}

func TestCombineShapeAlreadyJoined(t *testing.T) {
	n := testNetwork(t)
	pred := network.EdgeID(0)
	poly, err := CombineShape(n, 1, &pred, false, false)
	if err != nil {
		t.Fatalf("CombineShape: %v", err)
	}
	// Edge 0 ends at (100,0), edge 1 starts at (100,0): no prepend needed.
	if len(poly) != 2 {
		t.Fatalf("poly = %v, want length 2 (no duplicate stitch point)", poly)
	}
}

func TestCombineShapeBothReversedStitchesAtLastPoint(t *testing.T) {
	n := testNetwork(t)
	pred := network.EdgeID(1) // stored as (100,0)->(100,100)
	poly, err := CombineShape(n, 0, &pred, true, true)
	if err != nil {
		t.Fatalf("CombineShape: %v", err)
	}
	// edge 0 reversed: (100,0)->(0,0). Both reversed, so the stitch is the
	// predecessor's last stored point (100,100), which differs from poly's
	// first point (100,0) and is prepended.
	if len(poly) != 3 || poly[0] != (geo.Point{X: 100, Y: 100}) {
		t.Fatalf("poly = %v, want to start at (100,100) with length 3", poly)
	}
}

func TestCombineShapeRequiresPrepend(t *testing.T) {
	n := testNetwork(t)
	pred := network.EdgeID(1) // (100,0)->(100,100)
	poly, err := CombineShape(n, 0, &pred, false, false)
	if err != nil {
		t.Fatalf("CombineShape: %v", err)
	}
	// predecessor not reversed, edge not reversed: stitch = pred's last point = (100,100).
	// edge 0's shape starts at (0,0), so (100,100) must be prepended.
	if len(poly) != 3 || poly[0] != (geo.Point{X: 100, Y: 100}) {
		t.Fatalf("poly = %v, want prepended stitch point (100,100)", poly)
	}
}
