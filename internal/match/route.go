package match

import (
	"roadmatch/internal/network"
	"roadmatch/internal/shape"
)

// Routes groups consecutive MatchRecords sharing the same (predecessor
// edge, edge, edge reversed, predecessor reversed) key into one RouteGroup
// each, in the order the groups were first entered.
func (r *Result) Routes() []RouteGroup {
	var groups []RouteGroup
	var cur *routeAccum

	flush := func() {
		if cur == nil {
			return
		}
		groups = append(groups, cur.finish(r.net))
		cur = nil
	}

	for _, rec := range r.MatchRecords {
		if cur == nil || !cur.sameKey(rec) {
			flush()
			cur = newRouteAccum(rec)
		}
		cur.add(rec)
	}
	flush()

	return groups
}

type routeAccum struct {
	predecessorEdge     *network.EdgeID
	edge                network.EdgeID
	edgeReversed        bool
	predecessorReversed bool

	departure  int64
	arrival    int64
	stopTime   int
}

func newRouteAccum(rec MatchRecord) *routeAccum {
	return &routeAccum{
		predecessorEdge:     rec.PredecessorEdge,
		edge:                rec.ChosenEdge,
		edgeReversed:        rec.EdgeReversed,
		predecessorReversed: rec.PredecessorReversed,
		departure:           rec.Timestamp,
		arrival:             rec.Timestamp,
	}
}

func (a *routeAccum) sameKey(rec MatchRecord) bool {
	return a.edge == rec.ChosenEdge &&
		a.edgeReversed == rec.EdgeReversed &&
		a.predecessorReversed == rec.PredecessorReversed &&
		edgePtrEqual(a.predecessorEdge, rec.PredecessorEdge)
}

func (a *routeAccum) add(rec MatchRecord) {
	if rec.Timestamp < a.departure {
		a.departure = rec.Timestamp
	}
	if rec.Timestamp > a.arrival {
		a.arrival = rec.Timestamp
	}
	if rec.Speed == 0 {
		a.stopTime++
	}
}

func (a *routeAccum) finish(n *network.Network) RouteGroup {
	g := RouteGroup{
		PredecessorEdge:     a.predecessorEdge,
		Edge:                a.edge,
		EdgeReversed:        a.edgeReversed,
		PredecessorReversed: a.predecessorReversed,
		Departure:           a.departure,
		Arrival:             a.arrival,
		TravelTime:          a.arrival - a.departure,
		StopTime:            a.stopTime,
	}

	if n == nil {
		return g
	}
	poly, err := shape.CombineShape(n, a.edge, a.predecessorEdge, a.edgeReversed, a.predecessorReversed)
	if err != nil {
		return g
	}
	g.Shape = make([]LonLat, len(poly))
	for i, p := range poly {
		lon, lat := n.XYToLonLat(p.X, p.Y)
		g.Shape[i] = LonLat{Lon: lon, Lat: lat}
	}
	return g
}

func edgePtrEqual(a, b *network.EdgeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
