// Package network holds the in-memory road graph the matcher searches:
// nodes and edges laid out as compact arrays (CSR-style, following the
// teacher's graph package), a spatial index for nearest-edge queries, and
// the coordinate projection used to move between geography and the planar
// plane the matcher scores candidates in.
package network

import (
	"fmt"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
)

// NodeID identifies a node within a Network.
type NodeID uint32

// EdgeID identifies an edge within a Network.
type EdgeID uint32

// Node is a read view of one network node.
type Node struct {
	ID       NodeID
	X, Y     float64
	Outgoing []EdgeID
	Incoming []EdgeID
}

// Edge is a read view of one network edge.
type Edge struct {
	ID      EdgeID
	From    NodeID
	To      NodeID
	Speed   float64 // m/s, free-flow
	Length  float64 // m, recomputed from Shape
	Shape   []geo.Point
	BBox    geo.BBox
}

// NetworkMeta carries the projection/offset/boundary bundle a NetworkImport
// attaches to a Network so downstream consumers understand how planar
// coordinates relate to geography.
type NetworkMeta struct {
	ProjParameter              string
	NetOffsetX, NetOffsetY     float64
	OrigBoundary, ConvBoundary geo.BBox
}

// Network is the immutable road graph the matcher reads from.
type Network struct {
	nodeX, nodeY []float64
	nodeOut      [][]EdgeID
	nodeIn       [][]EdgeID

	edgeFrom, edgeTo []NodeID
	edgeSpeed        []float64
	edgeLength       []float64
	edgeShapeStart   []uint32
	edgeShape        []geo.Point
	edgeBBox         []geo.BBox

	index *spatialIndex
	proj  coordproj.Projector
	Meta  NetworkMeta
}

// NumNodes returns the number of nodes in the network.
func (n *Network) NumNodes() int { return len(n.nodeX) }

// NumEdges returns the number of edges in the network.
func (n *Network) NumEdges() int { return len(n.edgeFrom) }

// NodeByID returns the node for id, or false if id is out of range.
func (n *Network) NodeByID(id NodeID) (Node, bool) {
	if int(id) < 0 || int(id) >= len(n.nodeX) {
		return Node{}, false
	}
	return Node{
		ID:       id,
		X:        n.nodeX[id],
		Y:        n.nodeY[id],
		Outgoing: n.nodeOut[id],
		Incoming: n.nodeIn[id],
	}, true
}

// EdgeByID returns the edge for id, or false if id is out of range.
func (n *Network) EdgeByID(id EdgeID) (Edge, bool) {
	if int(id) < 0 || int(id) >= len(n.edgeFrom) {
		return Edge{}, false
	}
	start, end := n.edgeShapeStart[id], n.edgeShapeStart[id+1]
	return Edge{
		ID:     id,
		From:   n.edgeFrom[id],
		To:     n.edgeTo[id],
		Speed:  n.edgeSpeed[id],
		Length: n.edgeLength[id],
		Shape:  n.edgeShape[start:end],
		BBox:   n.edgeBBox[id],
	}, true
}

// Outgoing returns the edges leaving node u.
func (n *Network) Outgoing(u NodeID) []EdgeID { return n.nodeOut[u] }

// Incoming returns the edges arriving at node u.
func (n *Network) Incoming(u NodeID) []EdgeID { return n.nodeIn[u] }

// ApparentSuccessors returns every edge touching pivot, viewed as if the
// network were undirected: outgoing edges (reversed=false) unioned with
// incoming edges (reversed=true). This is a structural view only; callers
// apply their own one-way/turn policy on top of it.
func (n *Network) ApparentSuccessors(pivot NodeID) map[EdgeID]bool {
	out := make(map[EdgeID]bool, len(n.nodeOut[pivot])+len(n.nodeIn[pivot]))
	for _, e := range n.nodeOut[pivot] {
		out[e] = false
	}
	for _, e := range n.nodeIn[pivot] {
		out[e] = true
	}
	return out
}

// EdgeDistance pairs an edge with its distance from a query point.
type EdgeDistance struct {
	Edge EdgeID
	Dist float64
}

// NeighboringEdges returns every edge whose shape comes within r meters of
// (x, y), sorted by ascending distance.
func (n *Network) NeighboringEdges(x, y, r float64) []EdgeDistance {
	return n.index.search(n, x, y, r)
}

// LonLatToXY converts a geographic coordinate to the network's planar space.
func (n *Network) LonLatToXY(lon, lat float64) (x, y float64) {
	return n.proj.ToXY(lon, lat)
}

// XYToLonLat converts a planar coordinate back to geography.
func (n *Network) XYToLonLat(x, y float64) (lon, lat float64) {
	return n.proj.ToLonLat(x, y)
}

// Projector returns n's coordinate projector, for callers (such as
// internal/cleaning) that need to project raw observations into n's planar
// space before matching.
func (n *Network) Projector() coordproj.Projector {
	return n.proj
}

// SetProjector replaces n's coordinate projector. sumoimport builds a
// Network with a nil projector (SUMO lane shapes are already planar, so
// import itself never projects anything) and the caller attaches a real
// coordproj.Proj4Projector built from NetworkMeta.ProjParameter afterward.
func (n *Network) SetProjector(proj coordproj.Projector) {
	n.proj = proj
}

// ProjectorFromMeta reconstructs a coordinate projector from a Network's
// metadata: a real coordproj.Proj4Projector when meta carries a proj4
// definition (a SUMO import), otherwise an AffineProjector centered on
// meta's origin boundary centroid (an OSM import, which has no proj4
// string). Used by ReadBinary's callers, since the binary format persists
// only the parameters needed to reconstruct a projector, not a live one.
func ProjectorFromMeta(meta NetworkMeta) (coordproj.Projector, error) {
	if meta.ProjParameter != "" {
		return coordproj.NewProj4Projector(meta.ProjParameter, coordproj.Offset{X: meta.NetOffsetX, Y: meta.NetOffsetY})
	}
	originLon := (meta.OrigBoundary.MinX + meta.OrigBoundary.MaxX) / 2
	originLat := (meta.OrigBoundary.MinY + meta.OrigBoundary.MaxY) / 2
	return coordproj.NewAffineProjector(originLon, originLat, coordproj.Offset{}), nil
}

// ErrInvalidReference describes an edge that references an unknown node.
// Build does not return it: Builder derives nodes from edge endpoints.
var ErrInvalidReference = fmt.Errorf("network: edge references unknown node")
