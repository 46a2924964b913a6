// Package match implements the greedy, backtracking map matcher: it walks a
// time-ordered sequence of cleaned GPS samples and commits each one to an
// edge of a road Network, rewinding through a decision stack whenever a
// committed choice turns out to be a dead end.
package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"roadmatch/internal/geo"
	"roadmatch/internal/network"
	"roadmatch/internal/shape"
)

// Matcher runs one match against a fixed road network with a fixed Config.
// It is not safe for concurrent use, but a single Matcher can be reused
// across successive calls to Match.
type Matcher struct {
	net *network.Network
	cfg Config

	path    []PathStep
	stack   []*decisionFrame
	records []MatchRecord
}

// NewMatcher builds a Matcher bound to net and cfg.
func NewMatcher(net *network.Network, cfg Config) *Matcher {
	return &Matcher{net: net, cfg: cfg}
}

// Result is the output of a completed match: the per-sample trace and the
// distinct edges traversed, in the order first committed.
type Result struct {
	MatchRecords []MatchRecord
	Path         []PathStep

	net *network.Network
}

type candidate struct {
	edge     network.EdgeID
	reversed bool
}

type scoredCandidate struct {
	candidate
	offset          float64
	foot            geo.Point
	perp            float64
	matchedBearing  float64
	bearingErr      float64
	airErr          float64
	predicted       float64
	matchedRoad     float64
	rd              float64
	traversalLength float64
	cost            float64
}

// Match runs the matcher over samples, which must already be cleaned and
// evenly sampled. It returns ErrUnmatchable if the decision stack empties
// out before every sample is consumed, and ErrDeadlineExceeded if
// cfg.MaxRunningTime elapses first.
func (m *Matcher) Match(ctx context.Context, samples []Sample) (*Result, error) {
	m.reset()
	if len(samples) == 0 {
		return &Result{net: m.net}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, m.cfg.MaxRunningTime)
	defer cancel()

	first := samples[0]
	initial := m.net.NeighboringEdges(first.X, first.Y, m.cfg.SearchRadius())
	if len(initial) == 0 {
		return nil, fmt.Errorf("%w: no edge within search radius of first sample", ErrUnmatchable)
	}
	remaining := make(map[network.EdgeID]bool, len(initial))
	for _, c := range initial {
		remaining[c.Edge] = false
	}
	m.stack = append(m.stack, &decisionFrame{sampleIndex: 0, remaining: remaining})

	i := 0
	for i < len(samples) {
		select {
		case <-runCtx.Done():
			m.reset()
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return nil, ErrDeadlineExceeded
			}
			return nil, runCtx.Err()
		default:
		}

		advanced, err := m.step(samples, i)
		if err != nil {
			m.reset()
			return nil, err
		}
		if advanced {
			i++
			continue
		}
		i = m.stack[len(m.stack)-1].sampleIndex
	}

	result := &Result{
		MatchRecords: append([]MatchRecord(nil), m.records...),
		Path:         append([]PathStep(nil), m.path...),
		net:          m.net,
	}
	return result, nil
}

func (m *Matcher) reset() {
	m.path = nil
	m.stack = nil
	m.records = nil
}

// step scores the candidates for sample i and either commits the best one
// (advanced=true, caller moves to i+1) or rewinds the decision stack
// (advanced=false, caller resumes at the frame now on top).
func (m *Matcher) step(samples []Sample, i int) (advanced bool, err error) {
	if err := m.checkInvariant(); err != nil {
		return false, err
	}

	top := m.stack[len(m.stack)-1]
	s := samples[i]

	var decision Decision
	var cands []candidate

	if top.lastEdge == nil {
		decision = DecisionChange
		cands = candidatesFromMap(top.remaining)
	} else {
		last := m.path[len(m.path)-1]
		remainLen := last.TraversalLength - top.lastOffset
		maxSpeed := edgeSpeed(m.net, *top.lastEdge)
		decision = classifyTransition(remainLen, s.Speed, maxSpeed, 1.0, m.cfg.DiffGPSError)

		switch decision {
		case DecisionStay:
			cands = []candidate{{edge: *top.lastEdge, reversed: top.lastEdgeReversed}}
		case DecisionChange:
			cands = m.successors(*top.lastEdge, top.lastEdgeReversed)
		default: // DecisionNoDecision
			cands = withSelf(m.successors(*top.lastEdge, top.lastEdgeReversed), *top.lastEdge, top.lastEdgeReversed)
		}
	}

	if len(cands) == 0 {
		return false, fmt.Errorf("%w: no candidate edges at sample %d", ErrUnmatchable, i)
	}

	predEdge, predReversed := m.predecessor()
	best, err := m.scoreCandidates(cands, s)
	if err != nil {
		return false, err
	}

	if best.perp > m.cfg.SearchRadius() {
		if err := m.rewind(best.edge); err != nil {
			return false, err
		}
		return false, nil
	}

	m.records = append(m.records, m.buildRecord(best, decision, s, i, predEdge, predReversed))

	switch {
	case top.lastEdge == nil:
		delete(top.remaining, best.edge)
		edge := best.edge
		top.lastEdge = &edge
		top.lastEdgeReversed = best.reversed
		top.lastOffset = best.offset
		m.path = append(m.path, PathStep{Edge: best.edge, Reversed: best.reversed, TraversalLength: best.traversalLength})

	case best.edge == *top.lastEdge:
		top.lastOffset = best.offset

	default:
		oldEdge := *top.lastEdge
		newRemaining := candidatesMapExcluding(cands, oldEdge, best.edge)
		m.path = append(m.path, PathStep{Edge: best.edge, Reversed: best.reversed, TraversalLength: best.traversalLength})
		edge := best.edge
		m.stack = append(m.stack, &decisionFrame{
			sampleIndex:      i,
			remaining:        newRemaining,
			lastEdge:         &edge,
			lastEdgeReversed: best.reversed,
			lastOffset:       best.offset,
		})
	}

	return true, nil
}

// rewind discards best from the top frame's candidate set and backs out of
// the frame's own in-progress choice. If that leaves the frame (or any
// ancestor above an exhausted frame) with nothing left to try, the frame and
// its committed edge are discarded too, cascading up the stack until one
// with untried candidates is found.
func (m *Matcher) rewind(best network.EdgeID) error {
	top := m.stack[len(m.stack)-1]
	delete(top.remaining, best)

	for len(m.stack) > 0 && len(m.stack[len(m.stack)-1].remaining) == 0 {
		discarded := m.stack[len(m.stack)-1]
		m.stack = m.stack[:len(m.stack)-1]
		if discarded.lastEdge != nil {
			m.path = m.path[:len(m.path)-1]
		}
	}

	if len(m.stack) == 0 {
		return fmt.Errorf("%w: decision stack exhausted", ErrUnmatchable)
	}

	newTop := m.stack[len(m.stack)-1]
	if newTop.lastEdge != nil {
		m.path = m.path[:len(m.path)-1]
	}
	newTop.lastEdge = nil
	newTop.lastEdgeReversed = false
	newTop.lastOffset = 0

	resumeIndex := newTop.sampleIndex
	n := 0
	for _, r := range m.records {
		if r.SampleIndex < resumeIndex {
			m.records[n] = r
			n++
		}
	}
	m.records = m.records[:n]
	return nil
}

// predecessor is the second-from-top edge of the committed path, the one
// CombineShape stitches a candidate's shape onto. It is shared by every
// candidate scored for a given sample.
func (m *Matcher) predecessor() (*network.EdgeID, bool) {
	if len(m.path) < 2 {
		return nil, false
	}
	step := m.path[len(m.path)-2]
	edge := step.Edge
	return &edge, step.Reversed
}

func (m *Matcher) scoreCandidates(cands []candidate, s Sample) (scoredCandidate, error) {
	predEdge, predReversed := m.predecessor()

	var prev *MatchRecord
	if len(m.records) > 0 {
		prev = &m.records[len(m.records)-1]
	}

	var best scoredCandidate
	haveBest := false

	for _, c := range cands {
		poly, err := shape.CombineShape(m.net, c.edge, predEdge, c.reversed, predReversed)
		if err != nil {
			return scoredCandidate{}, err
		}
		traversalLength := geo.PolylineLength(poly)

		offset, foot := geo.PolylineProject(geo.Point{X: s.X, Y: s.Y}, poly)
		if offset > traversalLength {
			offset = traversalLength
		}
		perp := geo.Distance(foot, geo.Point{X: s.X, Y: s.Y})

		matchedBearing, err := geo.BearingAtOffset(poly, offset)
		if err != nil {
			return scoredCandidate{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
		}
		bearingErr := geo.CircularBearingDiff(s.Bearing, matchedBearing)

		var airErr float64
		var lastEdgeForRD network.EdgeID
		var lastOffsetForRD, lastTraversalForRD float64
		if prev != nil {
			prevFoot := geo.Point{X: prev.MatchedX, Y: prev.MatchedY}
			prevSample := geo.Point{X: prev.OriginalX, Y: prev.OriginalY}
			airSample := geo.Distance(prevSample, geo.Point{X: s.X, Y: s.Y})
			airMatched := geo.Distance(prevFoot, foot)
			airErr = math.Abs(airSample - airMatched)
			lastEdgeForRD = prev.ChosenEdge
			lastOffsetForRD = prev.Offset
			lastTraversalForRD = prev.TraversalLength
		} else {
			lastEdgeForRD = c.edge
			lastOffsetForRD = offset
			lastTraversalForRD = 0
		}

		var matchedRoad float64
		if c.edge == lastEdgeForRD {
			matchedRoad = math.Max(0, offset-lastOffsetForRD)
		} else {
			matchedRoad = (lastTraversalForRD - lastOffsetForRD) + offset
		}
		predicted := s.Speed
		rd := math.Abs(matchedRoad - predicted)

		cost := bearingErr*m.cfg.BearingWeight + perp*m.cfg.PerpWeight + airErr*m.cfg.AirWeight + rd*m.cfg.RoadDistanceWeight
		if c.reversed {
			cost += m.cfg.ReversalPenalty
		}

		sc := scoredCandidate{
			candidate:       c,
			offset:          offset,
			foot:            foot,
			perp:            perp,
			matchedBearing:  matchedBearing,
			bearingErr:      bearingErr,
			airErr:          airErr,
			predicted:       predicted,
			matchedRoad:     matchedRoad,
			rd:              rd,
			traversalLength: traversalLength,
			cost:            cost,
		}
		if !haveBest || sc.cost < best.cost {
			best = sc
			haveBest = true
		}
	}

	return best, nil
}

func (m *Matcher) buildRecord(best scoredCandidate, decision Decision, s Sample, i int, predEdge *network.EdgeID, predReversed bool) MatchRecord {
	return MatchRecord{
		SampleIndex: i,
		Timestamp:   s.Timestamp,

		MatchedX:        best.foot.X,
		MatchedY:        best.foot.Y,
		ChosenEdge:      best.edge,
		EdgeReversed:    best.reversed,
		Offset:          best.offset,
		TraversalLength: best.traversalLength,

		PredecessorEdge:     predEdge,
		PredecessorReversed: predReversed,

		MatchedBearing:      best.matchedBearing,
		BearingError:        best.bearingErr,
		PerpendicularError:  best.perp,
		AirDistanceError:    best.airErr,
		RoadDistanceError:   best.rd,
		PredictedDistance:   best.predicted,
		MatchedRoadDistance: best.matchedRoad,

		Decision:  decision,
		Speed:     s.Speed,
		StopIndex: s.StopIndex,
		Type:      s.Type,

		OriginalX: s.X,
		OriginalY: s.Y,
	}
}

// successors enumerates the candidate edges reachable from edge's far node
// (the node at its head, or its tail when reversed). With MapOneWayFix it
// uses the apparent-undirected view so a one-way street can still be
// traveled against its digitized direction; otherwise it only follows true
// outgoing edges.
func (m *Matcher) successors(edge network.EdgeID, reversed bool) []candidate {
	e, ok := m.net.EdgeByID(edge)
	if !ok {
		return nil
	}
	pivot := e.To
	if reversed {
		pivot = e.From
	}

	var apparent map[network.EdgeID]bool
	if m.cfg.MapOneWayFix {
		apparent = m.net.ApparentSuccessors(pivot)
	} else {
		out := m.net.Outgoing(pivot)
		apparent = make(map[network.EdgeID]bool, len(out))
		for _, o := range out {
			apparent[o] = false
		}
	}

	if !m.cfg.UTurnOnOneway {
		delete(apparent, edge)
	}
	if !m.cfg.Loop {
		for _, step := range m.path {
			delete(apparent, step.Edge)
		}
	}

	return candidatesFromMap(apparent)
}

// withSelf adds (or overwrites the reversed flag of) edge within cands,
// used to fold the stay-in-place option into a NODECISION candidate set.
func withSelf(cands []candidate, edge network.EdgeID, reversed bool) []candidate {
	for i, c := range cands {
		if c.edge == edge {
			cands[i].reversed = reversed
			return cands
		}
	}
	return append(cands, candidate{edge: edge, reversed: reversed})
}

// candidatesFromMap produces a deterministic, edge-id-sorted candidate list
// so that cost ties are always broken the same way.
func candidatesFromMap(m map[network.EdgeID]bool) []candidate {
	out := make([]candidate, 0, len(m))
	for e, r := range m {
		out = append(out, candidate{edge: e, reversed: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].edge < out[j].edge })
	return out
}

func candidatesMapExcluding(cands []candidate, exclude ...network.EdgeID) map[network.EdgeID]bool {
	skip := make(map[network.EdgeID]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	out := make(map[network.EdgeID]bool, len(cands))
	for _, c := range cands {
		if skip[c.edge] {
			continue
		}
		out[c.edge] = c.reversed
	}
	return out
}

// classifyTransition is the STAY/CHANGE/NODECISION rule: a sample that
// could not have stayed within the current edge's remaining length forces a
// CHANGE; one that comfortably could have forces a STAY; the slack band
// between the two is left undecided.
func classifyTransition(remainingLen, speed, maxSpeed, deltaTime, diffGPSError float64) Decision {
	if remainingLen < speed*deltaTime-diffGPSError {
		return DecisionChange
	}
	if remainingLen >= maxSpeed*deltaTime+diffGPSError {
		return DecisionStay
	}
	return DecisionNoDecision
}

func edgeSpeed(n *network.Network, id network.EdgeID) float64 {
	e, _ := n.EdgeByID(id)
	return e.Speed
}

// checkInvariant enforces that the top frame's notion of "last edge" always
// matches the actual top of the committed path, the invariant the rewind
// and commit logic are built to preserve.
func (m *Matcher) checkInvariant() error {
	if len(m.stack) == 0 {
		return fmt.Errorf("%w: empty decision stack", ErrInternalInvariant)
	}
	top := m.stack[len(m.stack)-1]
	if top.lastEdge == nil {
		return nil
	}
	if len(m.path) == 0 || m.path[len(m.path)-1].Edge != *top.lastEdge {
		return fmt.Errorf("%w: top frame's last edge does not match committed path", ErrInternalInvariant)
	}
	return nil
}
