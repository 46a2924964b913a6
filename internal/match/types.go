package match

import "roadmatch/internal/network"

// Sample is one cleaned GPS observation. The sequence handed to Match must
// be time-ordered and evenly spaced at 1s; Cleaning guarantees that.
type Sample struct {
	X, Y      float64
	Timestamp int64
	Speed     float64 // m/s
	Bearing   float64 // degrees, [0,360)
	StopIndex int     // 0 = moving; opaque pass-through otherwise
	Type      string  // opaque pass-through
}

// Decision classifies the transition rule's outcome at a sample.
type Decision int

const (
	DecisionChange Decision = iota
	DecisionStay
	DecisionNoDecision
)

func (d Decision) String() string {
	switch d {
	case DecisionChange:
		return "CHANGE"
	case DecisionStay:
		return "STAY"
	case DecisionNoDecision:
		return "NODECISION"
	default:
		return "UNKNOWN"
	}
}

// PathStep is one committed edge traversal in the matcher's output path.
type PathStep struct {
	Edge            network.EdgeID
	Reversed        bool
	TraversalLength float64 // length of the assembled shape used when this edge was entered
}

// MatchRecord is the per-sample output of a completed match.
type MatchRecord struct {
	SampleIndex int
	Timestamp   int64

	MatchedX, MatchedY float64
	ChosenEdge         network.EdgeID
	EdgeReversed       bool
	Offset             float64
	TraversalLength    float64

	PredecessorEdge     *network.EdgeID
	PredecessorReversed bool

	MatchedBearing     float64
	BearingError       float64
	PerpendicularError float64
	AirDistanceError   float64
	RoadDistanceError  float64
	PredictedDistance  float64
	MatchedRoadDistance float64

	Decision  Decision
	Speed     float64
	StopIndex int
	Type      string

	OriginalX, OriginalY float64
}

// decisionFrame is one entry on the backtracking stack.
type decisionFrame struct {
	sampleIndex       int
	remaining         map[network.EdgeID]bool // edge -> reversed, the set of not-yet-tried candidates
	lastEdge          *network.EdgeID
	lastEdgeReversed  bool
	lastOffset        float64
}

// RouteGroup is the derived "route" view: consecutive match records grouped
// by (predecessor edge, edge, reversal flags).
type RouteGroup struct {
	PredecessorEdge     *network.EdgeID
	Edge                network.EdgeID
	EdgeReversed        bool
	PredecessorReversed bool

	Departure  int64
	Arrival    int64
	TravelTime int64
	StopTime   int

	Shape []LonLat
}

// LonLat is a geographic coordinate pair used only at the output boundary.
type LonLat struct {
	Lon, Lat float64
}
