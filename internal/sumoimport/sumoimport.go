// Package sumoimport populates a RoadNetwork from a SUMO plain-XML network
// description (the format sumolib.net.readNet consumes): a <net> element
// carrying a <location> with the proj4 string and offset, and a sequence of
// <edge>/<lane> elements whose shape is already in the network's planar
// space. No Go library for this format exists anywhere in the example
// corpus, so this is a from-scratch stdlib encoding/xml reader, mirroring
// the original Python's importFromSumoNet field-by-field rather than any
// teacher code.
package sumoimport

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"roadmatch/internal/geo"
	"roadmatch/internal/network"
)

type sumoNet struct {
	Location sumoLocation `xml:"location"`
	Edges    []sumoEdge   `xml:"edge"`
}

type sumoLocation struct {
	NetOffset     string `xml:"netOffset,attr"`
	ConvBoundary  string `xml:"convBoundary,attr"`
	OrigBoundary  string `xml:"origBoundary,attr"`
	ProjParameter string `xml:"projParameter,attr"`
}

type sumoEdge struct {
	ID       string     `xml:"id,attr"`
	From     string     `xml:"from,attr"`
	To       string     `xml:"to,attr"`
	Function string     `xml:"function,attr"` // "internal" edges (inside junctions) are skipped
	Lanes    []sumoLane `xml:"lane"`
}

type sumoLane struct {
	Speed float64 `xml:"speed,attr"`
	Shape string  `xml:"shape,attr"`
}

// Import reads a SUMO plain-XML network from r and returns a network.Builder
// populated with one edge per <edge> element (using its first lane's speed
// and shape, the way sumolib treats a multi-lane edge as a single logical
// road for routing purposes), plus the NetworkMeta carrying the network's
// proj4 definition and offset.
func Import(r io.Reader) (*network.Builder, network.NetworkMeta, error) {
	var net sumoNet
	if err := xml.NewDecoder(r).Decode(&net); err != nil {
		return nil, network.NetworkMeta{}, fmt.Errorf("sumoimport: decode: %w", err)
	}

	offX, offY, err := parsePair(net.Location.NetOffset)
	if err != nil {
		return nil, network.NetworkMeta{}, fmt.Errorf("sumoimport: netOffset: %w", err)
	}

	meta := network.NetworkMeta{
		ProjParameter: net.Location.ProjParameter,
		NetOffsetX:    offX,
		NetOffsetY:    offY,
		OrigBoundary:  parseBoundary(net.Location.OrigBoundary),
		ConvBoundary:  parseBoundary(net.Location.ConvBoundary),
	}

	// The builder's Projector is unused here: SUMO lane shapes are already
	// planar, so edges go in via AddEdge, not AddRawEdge, and a nil projector
	// is passed; LonLatToXY on
	// the resulting Network is served by a real coordproj.Proj4Projector
	// the caller attaches separately (see NetworkMeta.ProjParameter).
	builder := network.NewBuilder(nil, meta)

	for _, e := range net.Edges {
		if e.Function == "internal" || len(e.Lanes) == 0 {
			continue
		}
		lane := e.Lanes[0]
		shape, err := parseShape(lane.Shape)
		if err != nil {
			return nil, network.NetworkMeta{}, fmt.Errorf("sumoimport: edge %s shape: %w", e.ID, err)
		}
		if len(shape) < 2 {
			continue
		}
		builder.AddEdge(shape, lane.Speed)
	}

	return builder, meta, nil
}

func parseShape(s string) ([]geo.Point, error) {
	fields := strings.Fields(s)
	points := make([]geo.Point, 0, len(fields))
	for _, f := range fields {
		x, y, err := parsePair(f)
		if err != nil {
			return nil, err
		}
		points = append(points, geo.Point{X: x, Y: y})
	}
	return points, nil
}

// parsePair parses SUMO's "x,y" coordinate pair, ignoring an optional third
// (z) component.
func parsePair(s string) (a, b float64, err error) {
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("expected \"x,y\", got %q", s)
	}
	a, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	b, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parseBoundary(s string) geo.BBox {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BBox{}
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		vals[i], _ = strconv.ParseFloat(p, 64)
	}
	return geo.BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
}
