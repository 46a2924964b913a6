package network

import (
	"os"
	"path/filepath"
	"testing"

	"roadmatch/internal/geo"
)

func TestWriteReadBinaryRoundTrip(t *testing.T) {
	orig := buildSquare(t)
	orig.Meta = NetworkMeta{
		NetOffsetX: 100, NetOffsetY: 200,
		OrigBoundary: geo.BBox{MinX: -1, MinY: -2, MaxX: 1, MaxY: 2},
		ConvBoundary: geo.BBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
	}

	path := filepath.Join(t.TempDir(), "network.bin")
	if err := WriteBinary(orig, path); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	got, err := ReadBinary(path, testProjector())
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}

	if got.NumNodes() != orig.NumNodes() {
		t.Fatalf("expected %d nodes, got %d", orig.NumNodes(), got.NumNodes())
	}
	if got.NumEdges() != orig.NumEdges() {
		t.Fatalf("expected %d edges, got %d", orig.NumEdges(), got.NumEdges())
	}
	for i := 0; i < orig.NumEdges(); i++ {
		wantEdge, _ := orig.EdgeByID(EdgeID(i))
		gotEdge, _ := got.EdgeByID(EdgeID(i))
		if wantEdge.From != gotEdge.From || wantEdge.To != gotEdge.To {
			t.Fatalf("edge %d endpoints differ: want (%d,%d) got (%d,%d)", i, wantEdge.From, wantEdge.To, gotEdge.From, gotEdge.To)
		}
		if wantEdge.Speed != gotEdge.Speed {
			t.Fatalf("edge %d speed differs: want %f got %f", i, wantEdge.Speed, gotEdge.Speed)
		}
		if len(wantEdge.Shape) != len(gotEdge.Shape) {
			t.Fatalf("edge %d shape length differs: want %d got %d", i, len(wantEdge.Shape), len(gotEdge.Shape))
		}
	}
	if got.Meta.NetOffsetX != orig.Meta.NetOffsetX || got.Meta.OrigBoundary != orig.Meta.OrigBoundary {
		t.Fatalf("meta not preserved across round-trip: got %+v, want %+v", got.Meta, orig.Meta)
	}
}

func TestReadBinaryRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("not a network binary file at all"), 0o644); err != nil {
		t.Fatalf("write garbage file: %v", err)
	}
	if _, err := ReadBinary(path, testProjector()); err == nil {
		t.Fatal("expected an error for a file with invalid magic bytes")
	}
}
