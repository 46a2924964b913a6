package match

import "time"

// Config holds the matcher's tuned thresholds. The cost weights and the
// reversal penalty are tuned constants, not derived — they are exposed here
// so callers can experiment, but the defaults are what the original system
// shipped with.
type Config struct {
	MaxGPSError float64 // m, assumed upper bound on GPS perpendicular error
	MaxMapError float64 // m, assumed upper bound on cartographic error

	DiffGPSError float64 // m, slack in the stay/change transition rule

	MapOneWayFix  bool // treat edges bidirectionally
	UTurnOnOneway bool // when true, the current edge stays a candidate successor of itself
	Loop          bool // when false, already-visited edges are excluded from successor enumeration

	MaxRunningTime time.Duration // wall-clock budget for one Match call

	MinSpeedBearing float64 // m/s, below this a sample's bearing is unreliable (pass-through for Cleaning)

	// Cost weights. cost = (ReversalPenalty if reversed) + BearingWeight*Δθ +
	// PerpWeight*perp + AirWeight*airError + RoadDistanceWeight*rd.
	BearingWeight      float64
	PerpWeight         float64
	AirWeight          float64
	RoadDistanceWeight float64
	ReversalPenalty    float64
}

// DefaultConfig returns the matcher's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxGPSError:     60,
		MaxMapError:     40,
		DiffGPSError:    10,
		MapOneWayFix:    true,
		UTurnOnOneway:   false,
		Loop:            true,
		MaxRunningTime:  5 * time.Second,
		MinSpeedBearing: 1,

		BearingWeight:      1,
		PerpWeight:         30,
		AirWeight:          10,
		RoadDistanceWeight: 5,
		ReversalPenalty:    100000,
	}
}

// SearchRadius is the candidate-enumeration radius: MaxGPSError + MaxMapError.
func (c Config) SearchRadius() float64 {
	return c.MaxGPSError + c.MaxMapError
}
