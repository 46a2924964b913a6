package network

import (
	"sort"

	"github.com/tidwall/rtree"

	"roadmatch/internal/geo"
)

// spatialIndex wraps an R-tree over edge bounding boxes for nearest-edge
// queries. The teacher's own go.mod already declares this dependency for
// exactly this purpose (a previous nearest-edge query used a hand-rolled
// flat sorted grid instead); here it is actually wired up.
type spatialIndex struct {
	tree rtree.RTreeG[EdgeID]
}

func newSpatialIndex(n *Network) *spatialIndex {
	idx := &spatialIndex{}
	for i := range n.edgeBBox {
		box := n.edgeBBox[i]
		idx.tree.Insert([2]float64{box.MinX, box.MinY}, [2]float64{box.MaxX, box.MaxY}, EdgeID(i))
	}
	return idx
}

// search returns every edge within r meters of (x, y), sorted by ascending
// distance, using an exact polyline-projection distance after the R-tree's
// bounding-box filter.
func (idx *spatialIndex) search(n *Network, x, y, r float64) []EdgeDistance {
	queryBox := geo.BBox{MinX: x, MinY: y, MaxX: x, MaxY: y}.Expand(r)

	var candidates []EdgeID
	idx.tree.Search(
		[2]float64{queryBox.MinX, queryBox.MinY},
		[2]float64{queryBox.MaxX, queryBox.MaxY},
		func(min, max [2]float64, id EdgeID) bool {
			candidates = append(candidates, id)
			return true
		},
	)

	p := geo.Point{X: x, Y: y}
	results := make([]EdgeDistance, 0, len(candidates))
	for _, id := range candidates {
		edge, ok := n.EdgeByID(id)
		if !ok {
			continue
		}
		_, foot := geo.PolylineProject(p, edge.Shape)
		dist := geo.Distance(p, foot)
		if dist <= r {
			results = append(results, EdgeDistance{Edge: id, Dist: dist})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Dist < results[j].Dist })
	return results
}
