package api

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"time"

	"roadmatch/internal/cleaning"
	"roadmatch/internal/match"
	"roadmatch/internal/network"
)

// CleaningOptions configures the cleaning pass HandleMatch runs before
// matching.
type CleaningOptions struct {
	MaxSpeedForOutlier float64
	MinSpeedForBearing float64
	SampleRate         time.Duration
}

// DefaultCleaningOptions returns sensible defaults for consumer GPS traces.
func DefaultCleaningOptions() CleaningOptions {
	return CleaningOptions{
		MaxSpeedForOutlier: 70, // m/s, ~250 km/h
		MinSpeedForBearing: 1,  // m/s
		SampleRate:         time.Second,
	}
}

// Handlers holds the HTTP handlers and their dependencies: the network to
// match against and the cleaning/matching configuration applied to every
// request.
type Handlers struct {
	net         *network.Network
	matchCfg    match.Config
	cleaningCfg CleaningOptions
}

// NewHandlers creates handlers bound to net.
func NewHandlers(net *network.Network, matchCfg match.Config, cleaningCfg CleaningOptions) *Handlers {
	return &Handlers{net: net, matchCfg: matchCfg, cleaningCfg: cleaningCfg}
}

// HandleMatch handles POST /api/v1/match: cleans the request's raw
// observations, matches them against the bound network, and returns the
// point-match and route-match views as JSON.
func (h *Handlers) HandleMatch(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var req MatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if len(req.Observations) < 2 {
		writeError(w, http.StatusBadRequest, "too_few_observations", "observations")
		return
	}
	for _, o := range req.Observations {
		if err := validateCoord(o.Lat, o.Lon); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_coordinates", "observations")
			return
		}
	}

	raw := make([]cleaning.RawObservation, len(req.Observations))
	for i, o := range req.Observations {
		raw[i] = cleaning.RawObservation{
			Lon: o.Lon, Lat: o.Lat,
			Timestamp: o.Timestamp, Speed: o.Speed, Bearing: o.Bearing, Type: o.Type,
		}
	}

	raw = cleaning.RemoveOutliers(raw, h.cleaningCfg.MaxSpeedForOutlier)
	if len(raw) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "all_observations_dropped", "")
		return
	}
	consolidated := cleaning.ProjectAndConsolidateStops(raw, h.net.Projector(), h.cleaningCfg.MinSpeedForBearing)
	samples, err := cleaning.Interpolate(consolidated, h.cleaningCfg.SampleRate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "interpolation_failed", "")
		return
	}

	matcher := match.NewMatcher(h.net, h.matchCfg)
	result, err := matcher.Match(r.Context(), samples)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	resp := MatchResponse{Points: make([]PointMatchJSON, len(result.MatchRecords))}
	for i, rec := range result.MatchRecords {
		lon, lat := h.net.XYToLonLat(rec.MatchedX, rec.MatchedY)
		resp.Points[i] = PointMatchJSON{
			SampleIndex:  rec.SampleIndex,
			Timestamp:    rec.Timestamp,
			Lon:          lon, Lat: lat,
			ChosenEdge:   uint32(rec.ChosenEdge),
			EdgeReversed: rec.EdgeReversed,
			Decision:     rec.Decision.String(),
		}
	}
	for _, rt := range result.Routes() {
		shape := make([]LatLngJSON, len(rt.Shape))
		for i, ll := range rt.Shape {
			shape[i] = LatLngJSON{Lat: ll.Lat, Lng: ll.Lon}
		}
		resp.Routes = append(resp.Routes, RouteMatchJSON{
			Edge:         uint32(rt.Edge),
			EdgeReversed: rt.EdgeReversed,
			Departure:    rt.Departure,
			Arrival:      rt.Arrival,
			TravelTime:   rt.TravelTime,
			StopTime:     rt.StopTime,
			Shape:        shape,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrUnmatchable):
		writeError(w, http.StatusUnprocessableEntity, "unmatchable", "")
	case errors.Is(err, match.ErrDeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request_timeout", "")
	case errors.Is(err, match.ErrInternalInvariant):
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatsResponse{
		NumNodes: h.net.NumNodes(),
		NumEdges: h.net.NumEdges(),
	})
}

func validateCoord(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Field: field})
}
