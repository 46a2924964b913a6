package network

import (
	"fmt"
	"sort"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
)

// RawEdge is one edge as handed to the builder by an importer that only has
// geographic coordinates (osmimport, sumoimport): a polyline of lon/lat
// shape points plus a free-flow speed. The builder projects it to planar
// space with its own Projector before compaction.
type RawEdge struct {
	Shape []geo.LonLat
	Speed float64 // m/s; 0 lets the importer's default table apply upstream
}

// Builder accumulates raw edges (in geographic or already-planar
// coordinates) and assembles them into a CSR Network, following the same
// node-compaction-then-prefix-sum algorithm the teacher's graph.Build uses,
// generalized to also populate incoming adjacency and full edge shapes.
type Builder struct {
	proj  coordproj.Projector
	meta  NetworkMeta
	edges []builderEdge
}

type builderEdge struct {
	shape []geo.Point // planar, already projected
	speed float64
}

// NewBuilder creates a Builder that projects incoming geographic shapes with
// proj.
func NewBuilder(proj coordproj.Projector, meta NetworkMeta) *Builder {
	return &Builder{proj: proj, meta: meta}
}

// AddEdge adds an edge whose shape is already planar; speed is the
// free-flow speed in m/s. Length is always recomputed from shape.
func (b *Builder) AddEdge(shape []geo.Point, speed float64) {
	cp := make([]geo.Point, len(shape))
	copy(cp, shape)
	b.edges = append(b.edges, builderEdge{shape: cp, speed: speed})
}

// AddRawEdge projects e.Shape through the Builder's Projector and adds the
// resulting planar edge, the entry point osmimport and sumoimport use since
// they only ever see geographic coordinates.
func (b *Builder) AddRawEdge(e RawEdge) {
	shape := make([]geo.Point, len(e.Shape))
	for i, ll := range e.Shape {
		x, y := b.proj.ToXY(ll.Lon, ll.Lat)
		shape[i] = geo.Point{X: x, Y: y}
	}
	b.AddEdge(shape, e.Speed)
}

// Build assembles the accumulated edges into a Network.
func (b *Builder) Build() (*Network, error) {
	if len(b.edges) == 0 {
		return &Network{proj: b.proj, Meta: b.meta}, nil
	}

	type key struct{ x, y float64 }
	nodeSet := make(map[key]NodeID)
	var nodeX, nodeY []float64

	addNode := func(p geo.Point) NodeID {
		k := key{p.X, p.Y}
		if id, ok := nodeSet[k]; ok {
			return id
		}
		id := NodeID(len(nodeX))
		nodeSet[k] = id
		nodeX = append(nodeX, p.X)
		nodeY = append(nodeY, p.Y)
		return id
	}

	type compactEdge struct {
		from, to NodeID
		speed    float64
		shape    []geo.Point
	}
	compact := make([]compactEdge, len(b.edges))
	for i, e := range b.edges {
		if len(e.shape) < 2 {
			return nil, fmt.Errorf("network: edge %d has fewer than 2 shape points", i)
		}
		from := addNode(e.shape[0])
		to := addNode(e.shape[len(e.shape)-1])
		compact[i] = compactEdge{from: from, to: to, speed: e.speed, shape: e.shape}
	}

	sort.SliceStable(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	numNodes := len(nodeX)
	numEdges := len(compact)

	edgeFrom := make([]NodeID, numEdges)
	edgeTo := make([]NodeID, numEdges)
	edgeSpeed := make([]float64, numEdges)
	edgeLength := make([]float64, numEdges)
	edgeBBox := make([]geo.BBox, numEdges)
	edgeShapeStart := make([]uint32, numEdges+1)
	var edgeShape []geo.Point

	nodeOutCount := make([]int, numNodes)
	nodeInCount := make([]int, numNodes)

	for i, e := range compact {
		edgeFrom[i] = e.from
		edgeTo[i] = e.to
		edgeSpeed[i] = e.speed
		edgeLength[i] = geo.PolylineLength(e.shape)
		edgeBBox[i] = geo.BoundingBox(e.shape)
		edgeShapeStart[i] = uint32(len(edgeShape))
		edgeShape = append(edgeShape, e.shape...)
		nodeOutCount[e.from]++
		nodeInCount[e.to]++
	}
	edgeShapeStart[numEdges] = uint32(len(edgeShape))

	nodeOut := make([][]EdgeID, numNodes)
	nodeIn := make([][]EdgeID, numNodes)
	for i := range nodeOut {
		nodeOut[i] = make([]EdgeID, 0, nodeOutCount[i])
		nodeIn[i] = make([]EdgeID, 0, nodeInCount[i])
	}
	for i := range compact {
		id := EdgeID(i)
		nodeOut[compact[i].from] = append(nodeOut[compact[i].from], id)
		nodeIn[compact[i].to] = append(nodeIn[compact[i].to], id)
	}

	n := &Network{
		nodeX:          nodeX,
		nodeY:          nodeY,
		nodeOut:        nodeOut,
		nodeIn:         nodeIn,
		edgeFrom:       edgeFrom,
		edgeTo:         edgeTo,
		edgeSpeed:      edgeSpeed,
		edgeLength:     edgeLength,
		edgeShapeStart: edgeShapeStart,
		edgeShape:      edgeShape,
		edgeBBox:       edgeBBox,
		proj:           b.proj,
		Meta:           b.meta,
	}
	n.index = newSpatialIndex(n)
	return n, nil
}
