// Package shape assembles the planar polyline a candidate edge traversal
// represents, splicing in the predecessor edge's stitching vertex when the
// two do not already share an endpoint. It is the one place the matcher
// turns a bare edge reference into the geometry its scoring step needs.
package shape

import (
	"fmt"

	"roadmatch/internal/geo"
	"roadmatch/internal/network"
)

// CombineShape returns the polyline representing traversal of edge (reversed
// per edgeReversed), glued onto predecessor's stitching vertex when a
// predecessor is given and the two shapes don't already touch.
//
// The stitching vertex is predecessor's last shape point when neither flag
// is reversed or both are, and its first shape point otherwise — the rule
// that keeps the topological join point correct across all four orientation
// combinations.
func CombineShape(n *network.Network, edge network.EdgeID, predecessor *network.EdgeID, edgeReversed, predecessorReversed bool) ([]geo.Point, error) {
	e, ok := n.EdgeByID(edge)
	if !ok {
		return nil, fmt.Errorf("shape: unknown edge %d", edge)
	}

	poly := make([]geo.Point, len(e.Shape))
	copy(poly, e.Shape)
	if edgeReversed {
		reverseInPlace(poly)
	}

	if predecessor == nil {
		return poly, nil
	}

	pred, ok := n.EdgeByID(*predecessor)
	if !ok {
		return nil, fmt.Errorf("shape: unknown predecessor edge %d", *predecessor)
	}
	if len(pred.Shape) == 0 {
		return poly, nil
	}

	var stitch geo.Point
	if edgeReversed == predecessorReversed {
		stitch = pred.Shape[len(pred.Shape)-1]
	} else {
		stitch = pred.Shape[0]
	}

	if len(poly) == 0 || poly[0] != stitch {
		poly = append([]geo.Point{stitch}, poly...)
	}

	return poly, nil
}

func reverseInPlace(p []geo.Point) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
