package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
	"roadmatch/internal/network"
)

func testProjector() *coordproj.AffineProjector {
	return coordproj.NewAffineProjector(0, 0, coordproj.Offset{})
}

// corridorNetwork builds two collinear one-way edges N0->N1->N2 along the
// X axis, 100m each, speed 10 m/s.
func corridorNetwork(t *testing.T) *network.Network {
	t.Helper()
	b := network.NewBuilder(testProjector(), network.NetworkMeta{})
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: 0}, {X: 200, Y: 0}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func straightSamples(n int, startX, speed, bearing float64) []Sample {
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		out[i] = Sample{
			X:         startX + speed*float64(i),
			Y:         0,
			Timestamp: int64(i),
			Speed:     speed,
			Bearing:   bearing,
		}
	}
	return out
}

func TestClassifyTransition(t *testing.T) {
	if d := classifyTransition(5, 10, 10, 1, 10); d != DecisionNoDecision {
		t.Errorf("got %v, want NODECISION", d)
	}
	if d := classifyTransition(-5, 10, 10, 1, 10); d != DecisionChange {
		t.Errorf("got %v, want CHANGE", d)
	}
	if d := classifyTransition(50, 10, 10, 1, 10); d != DecisionStay {
		t.Errorf("got %v, want STAY", d)
	}
}

func TestMatchStraightCorridor(t *testing.T) {
	n := corridorNetwork(t)
	m := NewMatcher(n, DefaultConfig())

	samples := straightSamples(20, 5, 10, 90)
	result, err := m.Match(context.Background(), samples)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if len(result.Path) != 2 {
		t.Fatalf("Path = %v, want 2 distinct edges", result.Path)
	}
	if result.Path[0].Edge != 0 || result.Path[1].Edge != 1 {
		t.Fatalf("Path = %v, want [0,1]", result.Path)
	}

	if len(result.MatchRecords) != len(samples) {
		t.Fatalf("got %d records, want %d", len(result.MatchRecords), len(samples))
	}

	radius := DefaultConfig().SearchRadius()
	for _, rec := range result.MatchRecords {
		if rec.PerpendicularError > radius {
			t.Errorf("sample %d: perp error %f exceeds radius %f", rec.SampleIndex, rec.PerpendicularError, radius)
		}
	}

	// Path must equal the distinct edges in the order they first appear in
	// the record stream.
	var seen []network.EdgeID
	for _, rec := range result.MatchRecords {
		if len(seen) == 0 || seen[len(seen)-1] != rec.ChosenEdge {
			seen = append(seen, rec.ChosenEdge)
		}
	}
	if len(seen) != len(result.Path) {
		t.Fatalf("distinct edges in records = %v, want %d entries matching Path %v", seen, len(result.Path), result.Path)
	}
	for i, e := range seen {
		if e != result.Path[i].Edge {
			t.Errorf("records-derived path[%d] = %d, want %d", i, e, result.Path[i].Edge)
		}
	}
}

func TestMatchStayOffsetsMonotonic(t *testing.T) {
	n := corridorNetwork(t)
	m := NewMatcher(n, DefaultConfig())
	samples := straightSamples(8, 5, 10, 90) // stays entirely within edge 0
	result, err := m.Match(context.Background(), samples)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	last := -1.0
	for _, rec := range result.MatchRecords {
		if rec.ChosenEdge != 0 {
			t.Fatalf("expected to stay on edge 0, got %d at sample %d", rec.ChosenEdge, rec.SampleIndex)
		}
		if rec.Offset < last {
			t.Errorf("offsets not monotonic: %f then %f", last, rec.Offset)
		}
		last = rec.Offset
	}
}

// oneWayDeadEndNetwork builds an L shape: edge 0 runs N0(0,0)->N1(100,0); edge
// 1 is digitized N2(100,-100)->N1(100,0), a one-way edge whose only legal
// forward direction points into N1. Continuing south past N1 requires
// traversing edge 1 against its digitized direction (reversed=true).
func oneWayDeadEndNetwork(t *testing.T) *network.Network {
	t.Helper()
	b := network.NewBuilder(testProjector(), network.NetworkMeta{})
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: -100}, {X: 100, Y: 0}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

func TestMatchOneWayReversal(t *testing.T) {
	n := oneWayDeadEndNetwork(t)
	m := NewMatcher(n, DefaultConfig())

	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{X: 5 + 10*float64(i), Y: 0, Timestamp: int64(i), Speed: 10, Bearing: 90})
	}
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{X: 100, Y: -5 - 10*float64(i), Timestamp: int64(10 + i), Speed: 10, Bearing: 180})
	}

	result, err := m.Match(context.Background(), samples)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(result.Path) != 2 {
		t.Fatalf("Path = %v, want 2 edges", result.Path)
	}
	if result.Path[1].Edge != 1 || !result.Path[1].Reversed {
		t.Fatalf("Path[1] = %+v, want edge 1 reversed", result.Path[1])
	}

	var sawReversed bool
	for _, rec := range result.MatchRecords {
		if rec.ChosenEdge == 1 && rec.EdgeReversed {
			sawReversed = true
		}
	}
	if !sawReversed {
		t.Error("expected at least one record with EdgeReversed on edge 1")
	}
}

func TestMatchUnmatchableFirstSample(t *testing.T) {
	n := corridorNetwork(t)
	m := NewMatcher(n, DefaultConfig())
	samples := []Sample{{X: 100000, Y: 100000, Timestamp: 0, Speed: 10, Bearing: 90}}
	_, err := m.Match(context.Background(), samples)
	if !errors.Is(err, ErrUnmatchable) {
		t.Fatalf("got %v, want ErrUnmatchable", err)
	}
}

func TestMatchDeadlineExceeded(t *testing.T) {
	n := corridorNetwork(t)
	cfg := DefaultConfig()
	cfg.MaxRunningTime = time.Nanosecond
	m := NewMatcher(n, cfg)
	samples := straightSamples(20, 5, 10, 90)

	_, err := m.Match(context.Background(), samples)
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("got %v, want ErrDeadlineExceeded", err)
	}
}

// forkNetwork builds a T-junction: edge 0 runs N0(0,0)->N1(100,0) east; edge
// 1 continues east N1(100,0)->N2(200,0); edge 2 branches north
// N1(100,0)->N3(100,100).
func forkNetwork(t *testing.T) *network.Network {
	t.Helper()
	b := network.NewBuilder(testProjector(), network.NetworkMeta{})
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: 0}, {X: 200, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: 0}, {X: 100, Y: 100}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

// TestMatchForkRewindKeepsJunctionEdge drives the matcher into branching onto
// the wrong sibling at a junction, then off the matched edge's corridor a few
// samples later so it triggers REWIND. The rewind must retry only the
// junction decision, not discard the edge leading up to it.
func TestMatchForkRewindKeepsJunctionEdge(t *testing.T) {
	n := forkNetwork(t)
	cfg := DefaultConfig()
	cfg.MaxGPSError = 10
	cfg.MaxMapError = 5

	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{X: 5 + 10*float64(i), Y: 0, Timestamp: int64(i), Speed: 10, Bearing: 90})
	}
	// Wrongly branches onto edge 1 at the junction, then swings north off its
	// corridor, forcing a rewind back to the junction decision.
	samples = append(samples, Sample{X: 105, Y: 0, Timestamp: 10, Speed: 10, Bearing: 90})
	samples = append(samples, Sample{X: 105, Y: 20, Timestamp: 11, Speed: 10, Bearing: 10})
	for i := 0; i < 5; i++ {
		samples = append(samples, Sample{X: 100, Y: 30 + 10*float64(i), Timestamp: int64(12 + i), Speed: 10, Bearing: 0})
	}

	m := NewMatcher(n, cfg)
	result, err := m.Match(context.Background(), samples)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	if len(result.Path) != 2 {
		t.Fatalf("Path = %v, want 2 edges", result.Path)
	}
	if result.Path[0].Edge != 0 {
		t.Fatalf("Path[0] = %+v, want edge 0 (the pre-junction edge must survive the rewind)", result.Path[0])
	}
	if result.Path[1].Edge != 2 {
		t.Fatalf("Path[1] = %+v, want edge 2 (the correct sibling)", result.Path[1])
	}

	for _, rec := range result.MatchRecords {
		if rec.ChosenEdge == 1 {
			t.Errorf("sample %d still references discarded edge 1", rec.SampleIndex)
		}
	}
}

// loopNetwork builds a 100m square: edge 0 N0(0,0)->N1(100,0) east, edge 1
// N1->N2(100,100) north, edge 2 N2->N3(0,100) west, edge 3 N3->N0 south,
// closing the loop back onto edge 0's start node.
func loopNetwork(t *testing.T) *network.Network {
	t.Helper()
	b := network.NewBuilder(testProjector(), network.NetworkMeta{})
	b.AddEdge([]geo.Point{{X: 0, Y: 0}, {X: 100, Y: 0}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: 0}, {X: 100, Y: 100}}, 10)
	b.AddEdge([]geo.Point{{X: 100, Y: 100}, {X: 0, Y: 100}}, 10)
	b.AddEdge([]geo.Point{{X: 0, Y: 100}, {X: 0, Y: 0}}, 10)
	n, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n
}

// loopSamples drives one full lap of loopNetwork starting partway along
// edge 0, then re-approaches the loop-closing node a second time so the
// second crossing of edge 0 is exercised.
func loopSamples() []Sample {
	var out []Sample
	ts := int64(0)
	add := func(x, y, bearing float64) {
		out = append(out, Sample{X: x, Y: y, Timestamp: ts, Speed: 10, Bearing: bearing})
		ts++
	}
	for i := 0; i < 8; i++ {
		add(20+10*float64(i), 0, 90) // edge 0 east
	}
	add(100, 5, 0)
	for i := 0; i < 8; i++ {
		add(100, 15+10*float64(i), 0) // edge 1 north
	}
	add(95, 100, 270)
	for i := 0; i < 8; i++ {
		add(85-10*float64(i), 100, 270) // edge 2 west
	}
	add(0, 95, 180)
	for i := 0; i < 8; i++ {
		add(0, 85-10*float64(i), 180) // edge 3 south
	}
	add(5, 0, 90)  // second crossing of the loop-closing node
	add(15, 0, 90) // self-continuation (or rejection, under Loop=false)
	add(25, 0, 90) // on edge 0 but off edge 3's corridor: forces REWIND when edge 0 is excluded
	return out
}

func TestMatchLoopTrueAllowsRevisitedEdge(t *testing.T) {
	n := loopNetwork(t)
	cfg := DefaultConfig()
	cfg.MaxGPSError = 10
	cfg.MaxMapError = 5
	cfg.Loop = true

	m := NewMatcher(n, cfg)
	result, err := m.Match(context.Background(), loopSamples())
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(result.Path) != 5 {
		t.Fatalf("Path = %v, want 5 edges (the loop closing back onto edge 0)", result.Path)
	}
	if result.Path[4].Edge != 0 {
		t.Fatalf("Path[4] = %+v, want edge 0 revisited", result.Path[4])
	}
}

// TestMatchLoopFalseRejectsRevisitedEdge checks spec.md's requirement that
// with Loop=false, a trajectory crossing the same edge twice is unmatchable
// on the second crossing.
func TestMatchLoopFalseRejectsRevisitedEdge(t *testing.T) {
	n := loopNetwork(t)
	cfg := DefaultConfig()
	cfg.MaxGPSError = 10
	cfg.MaxMapError = 5
	cfg.Loop = false

	m := NewMatcher(n, cfg)
	_, err := m.Match(context.Background(), loopSamples())
	if !errors.Is(err, ErrUnmatchable) {
		t.Fatalf("got %v, want ErrUnmatchable", err)
	}
}

func TestResultRoutesGrouping(t *testing.T) {
	n := corridorNetwork(t)
	m := NewMatcher(n, DefaultConfig())
	samples := straightSamples(20, 5, 10, 90)
	result, err := m.Match(context.Background(), samples)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	routes := result.Routes()
	// The sample that first moves onto edge 1 is scored before edge 1 is on
	// the path, so it has no predecessor and forms its own group; the later
	// edge 1 samples have predecessor edge 0.
	if len(routes) != 3 {
		t.Fatalf("Routes = %v, want 3 groups", routes)
	}
	if routes[0].Edge != 0 || routes[1].Edge != 1 || routes[2].Edge != 1 {
		t.Fatalf("routes = %+v, want edges [0,1,1]", routes)
	}
	if routes[0].Arrival < routes[0].Departure {
		t.Errorf("arrival %d before departure %d", routes[0].Arrival, routes[0].Departure)
	}
	if len(routes[0].Shape) == 0 {
		t.Error("expected a non-empty shape for the first route group")
	}
}
