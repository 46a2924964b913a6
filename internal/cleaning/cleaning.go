// Package cleaning regularizes a raw, unevenly spaced trajectory into the
// cleaned, evenly-spaced-at-1s sample sequence match.Matcher requires. It is
// an external collaborator: the matcher only ever sees its output type,
// match.Sample, never this package itself.
//
// Grounded in original_source/sources/cleandata.py (outlier rejection,
// stop-run consolidation) and interpolation.py (cubic-Bezier resampling);
// this is a from-scratch Go port since the example corpus carries no
// trajectory-cleaning library, rewritten in the teacher's error-handling
// idiom (explicit returns, no panics) rather than pandas vectorized ops.
package cleaning

import (
	"fmt"
	"math"
	"time"

	"roadmatch/internal/coordproj"
	"roadmatch/internal/geo"
	"roadmatch/internal/match"
)

// RawObservation is one uncleaned GPS fix, still in geographic coordinates.
type RawObservation struct {
	Lon, Lat  float64
	Timestamp int64
	Speed     float64 // m/s
	Bearing   float64 // degrees, [0,360)
	Type      string
}

// Observation is a raw observation after projection to planar space and
// stop-run consolidation, the input Interpolate resamples between.
type Observation struct {
	X, Y      float64
	Timestamp int64
	Speed     float64
	Bearing   float64
	StopIndex int
	Type      string
}

// RemoveOutliers drops an observation whenever the great-circle speed
// implied by it and its predecessor reaches or exceeds maxSpeedForOutlier, following
// cleandata.py's removeOutlier: consecutive GPS fixes implying an
// impossible speed indicate a bad fix, not a bad road.
func RemoveOutliers(obs []RawObservation, maxSpeedForOutlier float64) []RawObservation {
	if len(obs) == 0 {
		return nil
	}
	out := make([]RawObservation, 0, len(obs))
	out = append(out, obs[0])
	prev := obs[0]
	for _, o := range obs[1:] {
		dt := float64(o.Timestamp - prev.Timestamp)
		if dt <= 0 {
			continue
		}
		dist := geo.Haversine(prev.Lat, prev.Lon, o.Lat, o.Lon)
		if dist/dt >= maxSpeedForOutlier {
			continue
		}
		out = append(out, o)
		prev = o
	}
	return out
}

// ProjectAndConsolidateStops projects every observation to planar space and
// assigns a stopindex: 0 while moving, an incrementing id for each run of
// speed==0 fixes. Within a stop run the bearing is pinned to the run's first
// bearing (bearing is meaningless below minSpeedForBearing) and the x,y
// position is pinned to the run's first fix, following cleandata.py's
// xystop_point_editing (which uses the per-run median; pinning to the first
// fix is equivalent for the common case of a stationary vehicle and avoids
// a second pass over the slice).
func ProjectAndConsolidateStops(obs []RawObservation, proj coordproj.Projector, minSpeedForBearing float64) []Observation {
	out := make([]Observation, len(obs))
	stopRun := 0
	wasStopped := false
	var runX, runY float64
	var runBearing float64

	for i, o := range obs {
		x, y := proj.ToXY(o.Lon, o.Lat)
		bearing := o.Bearing
		if o.Speed < minSpeedForBearing && i > 0 {
			bearing = out[i-1].Bearing
		}

		stopped := o.Speed == 0
		stopIndex := 0
		if stopped {
			if !wasStopped {
				stopRun++
				runX, runY, runBearing = x, y, bearing
			}
			stopIndex = stopRun
			x, y, bearing = runX, runY, runBearing
		}
		wasStopped = stopped

		out[i] = Observation{
			X: x, Y: y,
			Timestamp: o.Timestamp,
			Speed:     o.Speed,
			Bearing:   bearing,
			StopIndex: stopIndex,
			Type:      o.Type,
		}
	}
	return out
}

// Interpolate resamples obs (time-ordered, planar, stop-consolidated) to an
// evenly-spaced sequence at sampleRate, the spacing match.Matcher requires.
// Between two non-stop observations it fits a cubic Bezier whose control
// points are derived from each endpoint's speed/bearing vector
// (bezierInterpolation's tangent construction); a run where both endpoints
// are stopped is held at a constant position rather than interpolated.
func Interpolate(obs []Observation, sampleRate time.Duration) ([]match.Sample, error) {
	if len(obs) < 2 {
		return nil, fmt.Errorf("cleaning: need at least 2 observations to interpolate, got %d", len(obs))
	}
	rate := sampleRate.Seconds()
	if rate <= 0 {
		return nil, fmt.Errorf("cleaning: sampleRate must be positive, got %s", sampleRate)
	}

	var out []match.Sample
	for i := 0; i < len(obs)-1; i++ {
		a, b := obs[i], obs[i+1]
		seg := bezierSegment(a, b, rate)
		if i > 0 {
			seg = seg[1:] // avoid duplicating the shared endpoint
		}
		out = append(out, seg...)
	}
	return out, nil
}

// bezierSegment interpolates between a and b, inclusive of both endpoints.
func bezierSegment(a, b Observation, sampleRate float64) []match.Sample {
	deltaTime := float64(b.Timestamp - a.Timestamp)
	if deltaTime <= 0 {
		return []match.Sample{toSample(a), toSample(b)}
	}

	if a.StopIndex > 0 && b.StopIndex > 0 {
		var out []match.Sample
		for t := 0.0; t <= deltaTime+1e-9; t += sampleRate {
			out = append(out, match.Sample{
				X: a.X, Y: a.Y,
				Timestamp: a.Timestamp + int64(math.Round(t)),
				Speed:     0,
				Bearing:   a.Bearing,
				StopIndex: a.StopIndex,
				Type:      a.Type,
			})
		}
		return out
	}

	pointA := geo.Point{X: a.X, Y: a.Y}
	pointB := geo.Point{X: b.X, Y: b.Y}
	dist := geo.Distance(pointA, pointB)

	vA := tangent(a.Speed, a.Bearing)
	vB := tangent(b.Speed, b.Bearing)

	control := 10 + math.Pow(math.Max(a.Speed, b.Speed), 1.2)
	alpha := 0.5 * math.Sqrt(a.Speed+1) / (math.Sqrt(a.Speed+1) + control) * dist * 3
	beta := 0.5 * math.Sqrt(b.Speed+1) / (math.Sqrt(b.Speed+1) + control) * dist * 3

	p0 := geo.Point{X: pointA.X + alpha*vA.X/3, Y: pointA.Y + alpha*vA.Y/3}
	p1 := geo.Point{X: pointB.X - beta*vB.X/3, Y: pointB.Y - beta*vB.Y/3}

	var out []match.Sample
	for t := 0.0; t <= deltaTime+1e-9; t += sampleRate {
		u := t / deltaTime
		if u > 1 {
			u = 1
		}
		p := cubicBezier(pointA, p0, p1, pointB, u)
		v := cubicBezierDerivative(pointA, p0, p1, pointB, u)
		bearing := geo.Bearing(geo.Point{}, geo.Point{X: v.X, Y: v.Y})

		speed := a.Speed
		if u > 0 {
			speed = geo.Distance(p, cubicBezier(pointA, p0, p1, pointB, math.Min(1, u+sampleRate/deltaTime))) / sampleRate
		}

		out = append(out, match.Sample{
			X: p.X, Y: p.Y,
			Timestamp: a.Timestamp + int64(math.Round(t)),
			Speed:     speed,
			Bearing:   bearing,
			StopIndex: 0,
			Type:      a.Type,
		})
	}
	return out
}

func tangent(speed, bearingDeg float64) geo.Point {
	rad := bearingDeg * math.Pi / 180
	return geo.Point{X: (speed + 1) * math.Sin(rad), Y: (speed + 1) * math.Cos(rad)}
}

func cubicBezier(p0, p1, p2, p3 geo.Point, t float64) geo.Point {
	mt := 1 - t
	b0 := mt * mt * mt
	b1 := 3 * mt * mt * t
	b2 := 3 * mt * t * t
	b3 := t * t * t
	return geo.Point{
		X: b0*p0.X + b1*p1.X + b2*p2.X + b3*p3.X,
		Y: b0*p0.Y + b1*p1.Y + b2*p2.Y + b3*p3.Y,
	}
}

func cubicBezierDerivative(p0, p1, p2, p3 geo.Point, t float64) geo.Point {
	q0 := geo.Point{X: 3 * (p1.X - p0.X), Y: 3 * (p1.Y - p0.Y)}
	q1 := geo.Point{X: 3 * (p2.X - p1.X), Y: 3 * (p2.Y - p1.Y)}
	q2 := geo.Point{X: 3 * (p3.X - p2.X), Y: 3 * (p3.Y - p2.Y)}
	mt := 1 - t
	b0 := mt * mt
	b1 := 2 * mt * t
	b2 := t * t
	return geo.Point{
		X: b0*q0.X + b1*q1.X + b2*q2.X,
		Y: b0*q0.Y + b1*q1.Y + b2*q2.Y,
	}
}

func toSample(o Observation) match.Sample {
	return match.Sample{
		X: o.X, Y: o.Y,
		Timestamp: o.Timestamp,
		Speed:     o.Speed,
		Bearing:   o.Bearing,
		StopIndex: o.StopIndex,
		Type:      o.Type,
	}
}
