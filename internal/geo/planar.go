// Package geo provides the planar geometric primitives the matcher scores
// candidates with, plus the great-circle helpers used at the geographic/planar
// boundary.
package geo

import (
	"errors"
	"math"
)

// ErrOutOfRange is returned when an offset falls outside a polyline's length.
var ErrOutOfRange = errors.New("geo: offset out of range")

// Point is a planar coordinate in meters.
type Point struct {
	X, Y float64
}

// Distance returns the Euclidean distance between two planar points.
func Distance(a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// PolylineLength sums the length of every segment in p.
func PolylineLength(p []Point) float64 {
	var total float64
	for i := 1; i < len(p); i++ {
		total += Distance(p[i-1], p[i])
	}
	return total
}

// SegmentProject projects p onto segment ab, clamped to the segment, and
// returns the offset from a along ab and the distance from p to the
// projected point.
func SegmentProject(p, a, b Point) (offset, dist float64) {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy

	if lenSq == 0 {
		return 0, Distance(p, a)
	}

	u := (p.X-a.X)*dx + (p.Y-a.Y)*dy
	segLen := math.Sqrt(lenSq)

	switch {
	case u <= 0:
		return 0, Distance(p, a)
	case u >= lenSq:
		return segLen, Distance(p, b)
	default:
		t := u / lenSq
		foot := Point{X: a.X + t*dx, Y: a.Y + t*dy}
		return t * segLen, Distance(p, foot)
	}
}

// PolylineProject finds the closest point on poly to p, returning the
// cumulative offset from the start of poly and the foot point. Ties between
// equidistant segments are broken by the lower segment index.
func PolylineProject(p Point, poly []Point) (offset float64, foot Point) {
	if len(poly) == 0 {
		return 0, Point{}
	}
	if len(poly) == 1 {
		return 0, poly[0]
	}

	var cumulative float64
	bestDist := math.Inf(1)
	var bestOffset float64
	var bestFoot Point

	for i := 1; i < len(poly); i++ {
		a, b := poly[i-1], poly[i]
		segOffset, dist := SegmentProject(p, a, b)
		if dist < bestDist {
			bestDist = dist
			bestOffset = cumulative + segOffset
			segLen := Distance(a, b)
			if segLen == 0 {
				bestFoot = a
			} else {
				t := segOffset / segLen
				bestFoot = Point{X: a.X + t*(b.X-a.X), Y: a.Y + t*(b.Y-a.Y)}
			}
		}
		cumulative += Distance(a, b)
	}

	return bestOffset, bestFoot
}

// BearingAtOffset returns the bearing (degrees, [0,360)) of the segment of
// poly that contains offset s measured from the start of poly.
func BearingAtOffset(poly []Point, s float64) (float64, error) {
	total := PolylineLength(poly)
	if s < 0 || s > total {
		return 0, ErrOutOfRange
	}

	var cumulative float64
	for i := 1; i < len(poly); i++ {
		segLen := Distance(poly[i-1], poly[i])
		cumulative += segLen
		if cumulative > s || i == len(poly)-1 {
			return Bearing(poly[i-1], poly[i]), nil
		}
	}
	return 0, ErrOutOfRange
}

// Bearing returns the compass bearing in degrees, [0,360), from a to b in
// planar coordinates (Y north, X east).
func Bearing(a, b Point) float64 {
	theta := math.Atan2(b.X-a.X, b.Y-a.Y) * 180 / math.Pi
	if theta < 0 {
		theta += 360
	}
	return theta
}

// CircularBearingDiff returns the smaller angle between two bearings,
// in [0,180].
func CircularBearingDiff(alpha, beta float64) float64 {
	d := math.Abs(alpha - beta)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// BBox is an axis-aligned bounding box in planar coordinates.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundingBox returns the axis-aligned bounding box of points. Calling it
// with an empty slice returns the zero BBox.
func BoundingBox(points []Point) BBox {
	if len(points) == 0 {
		return BBox{}
	}
	box := BBox{MinX: points[0].X, MaxX: points[0].X, MinY: points[0].Y, MaxY: points[0].Y}
	for _, p := range points[1:] {
		box.MinX = math.Min(box.MinX, p.X)
		box.MaxX = math.Max(box.MaxX, p.X)
		box.MinY = math.Min(box.MinY, p.Y)
		box.MaxY = math.Max(box.MaxY, p.Y)
	}
	return box
}

// Expand returns box grown by r meters in every direction.
func (box BBox) Expand(r float64) BBox {
	return BBox{
		MinX: box.MinX - r,
		MinY: box.MinY - r,
		MaxX: box.MaxX + r,
		MaxY: box.MaxY + r,
	}
}

// Intersects reports whether box and other overlap.
func (box BBox) Intersects(other BBox) bool {
	return box.MinX <= other.MaxX && other.MinX <= box.MaxX &&
		box.MinY <= other.MaxY && other.MinY <= box.MaxY
}

// LonLat is a geographic coordinate pair, used only at the boundary between
// network import and the planar space the matcher operates in.
type LonLat struct {
	Lon, Lat float64
}
