package coordproj

import (
	"fmt"

	"github.com/michiho/go-proj/v10"
)

// Proj4Projector wraps a real proj4 transformation, for networks (SUMO
// exports) that carry an explicit proj4 definition string plus a local
// offset, rather than only a bare origin.
type Proj4Projector struct {
	ctx    *proj.Context
	pj     *proj.PJ
	offset Offset
}

// NewProj4Projector builds a Proj4Projector from a proj4 definition string
// (e.g. "+proj=utm +zone=32 +datum=WGS84") and an offset applied after
// projection, matching a SUMO network's <location netOffset="..."/>.
func NewProj4Projector(definition string, offset Offset) (*Proj4Projector, error) {
	ctx := proj.NewContext()
	pj, err := ctx.New(definition)
	if err != nil {
		return nil, fmt.Errorf("coordproj: open proj definition %q: %w", definition, err)
	}
	return &Proj4Projector{ctx: ctx, pj: pj, offset: offset}, nil
}

// ToXY implements Projector.
func (p *Proj4Projector) ToXY(lon, lat float64) (x, y float64) {
	coord := proj.Coord{0: lat, 1: lon}.DegToRad()
	out, err := p.pj.Forward(coord)
	if err != nil {
		return 0, 0
	}
	return out[0] + p.offset.X, out[1] + p.offset.Y
}

// ToLonLat implements Projector.
func (p *Proj4Projector) ToLonLat(x, y float64) (lon, lat float64) {
	target := proj.Coord{0: x - p.offset.X, 1: y - p.offset.Y}
	out, err := p.pj.Inverse(target)
	if err != nil {
		return 0, 0
	}
	rad := proj.Coord{0: out[0], 1: out[1]}
	deg := rad.RadToDeg()
	return deg[1], deg[0]
}
