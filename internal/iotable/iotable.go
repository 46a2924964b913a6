// Package iotable is the tabular boundary between the matcher and the
// outside world: a CSV reader for the cleaned-sample input frame and CSV
// writers for the two output artifacts (point-match, route-match). None of
// it is part of the matching algorithm; it is a thin adapter, the role
// internal/osm's "Decode" played for the teacher's routing engine.
//
// No third-party CSV library appears anywhere in the example corpus, so
// this package uses stdlib encoding/csv as-is (see DESIGN.md).
package iotable

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"roadmatch/internal/match"
)

// requiredSampleColumns are the header names ReadSamples must find, adapted
// from passbi_core's gtfs parser's column-map-by-name approach rather than
// a fixed positional layout.
var requiredSampleColumns = []string{"id", "x", "y", "timestamp", "speed", "bearing", "stopindex", "type"}

// ReadSamples parses the cleaned-sample CSV columns {id, x, y, timestamp,
// speed, bearing, stopindex, type} into a time-ordered Sample slice.
func ReadSamples(r io.Reader) ([]match.Sample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("iotable: read header: %w", err)
	}
	colIdx := columnIndex(header)

	var missing []string
	for _, col := range requiredSampleColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", match.ErrInputSchema, missing)
	}

	var samples []match.Sample
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iotable: read sample row: %w", err)
		}

		x, err := parseFloat(record, colIdx, "x")
		if err != nil {
			return nil, err
		}
		y, err := parseFloat(record, colIdx, "y")
		if err != nil {
			return nil, err
		}
		ts, err := parseInt(record, colIdx, "timestamp")
		if err != nil {
			return nil, err
		}
		speed, err := parseFloat(record, colIdx, "speed")
		if err != nil {
			return nil, err
		}
		bearing, err := parseFloat(record, colIdx, "bearing")
		if err != nil {
			return nil, err
		}
		stopIndex, err := parseInt(record, colIdx, "stopindex")
		if err != nil {
			return nil, err
		}

		samples = append(samples, match.Sample{
			X: x, Y: y,
			Timestamp: ts,
			Speed:     speed,
			Bearing:   bearing,
			StopIndex: int(stopIndex),
			Type:      field(record, colIdx, "type"),
		})
	}
	return samples, nil
}

// WritePointMatch writes one CSV row per MatchRecord, the per-sample output.
func WritePointMatch(w io.Writer, records []match.MatchRecord) error {
	cw := csv.NewWriter(w)
	header := []string{
		"sample_index", "timestamp", "matched_x", "matched_y",
		"chosen_edge", "edge_reversed", "offset", "traversal_length",
		"predecessor_edge", "predecessor_reversed",
		"matched_bearing", "bearing_error", "perpendicular_error",
		"air_distance_error", "road_distance_error",
		"predicted_distance", "matched_road_distance",
		"decision", "speed", "stopindex", "type",
		"original_x", "original_y",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("iotable: write point-match header: %w", err)
	}

	for _, r := range records {
		predEdge := ""
		if r.PredecessorEdge != nil {
			predEdge = strconv.FormatUint(uint64(*r.PredecessorEdge), 10)
		}
		row := []string{
			strconv.Itoa(r.SampleIndex),
			strconv.FormatInt(r.Timestamp, 10),
			formatFloat(r.MatchedX), formatFloat(r.MatchedY),
			strconv.FormatUint(uint64(r.ChosenEdge), 10),
			strconv.FormatBool(r.EdgeReversed),
			formatFloat(r.Offset), formatFloat(r.TraversalLength),
			predEdge, strconv.FormatBool(r.PredecessorReversed),
			formatFloat(r.MatchedBearing), formatFloat(r.BearingError), formatFloat(r.PerpendicularError),
			formatFloat(r.AirDistanceError), formatFloat(r.RoadDistanceError),
			formatFloat(r.PredictedDistance), formatFloat(r.MatchedRoadDistance),
			r.Decision.String(), formatFloat(r.Speed), strconv.Itoa(r.StopIndex), r.Type,
			formatFloat(r.OriginalX), formatFloat(r.OriginalY),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("iotable: write point-match row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRouteMatch writes one CSV row per RouteGroup, the derived
// consecutive-same-edge route view.
func WriteRouteMatch(w io.Writer, routes []match.RouteGroup) error {
	cw := csv.NewWriter(w)
	header := []string{
		"predecessor_edge", "predecessor_reversed", "edge", "edge_reversed",
		"departure", "arrival", "travel_time", "stop_time", "shape_wkt",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("iotable: write route-match header: %w", err)
	}

	for _, r := range routes {
		predEdge := ""
		if r.PredecessorEdge != nil {
			predEdge = strconv.FormatUint(uint64(*r.PredecessorEdge), 10)
		}
		row := []string{
			predEdge, strconv.FormatBool(r.PredecessorReversed),
			strconv.FormatUint(uint64(r.Edge), 10), strconv.FormatBool(r.EdgeReversed),
			strconv.FormatInt(r.Departure, 10), strconv.FormatInt(r.Arrival, 10),
			strconv.FormatInt(r.TravelTime, 10), strconv.Itoa(r.StopTime),
			lineStringWKT(r.Shape),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("iotable: write route-match row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func lineStringWKT(shape []match.LonLat) string {
	if len(shape) == 0 {
		return ""
	}
	parts := make([]string, len(shape))
	for i, p := range shape {
		parts[i] = fmt.Sprintf("%s %s", formatFloat(p.Lon), formatFloat(p.Lat))
	}
	return "LINESTRING(" + strings.Join(parts, ",") + ")"
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return idx
}

func field(record []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseFloat(record []string, colIdx map[string]int, name string) (float64, error) {
	v, err := strconv.ParseFloat(field(record, colIdx, name), 64)
	if err != nil {
		return 0, fmt.Errorf("iotable: column %q: %w", name, err)
	}
	return v, nil
}

func parseInt(record []string, colIdx map[string]int, name string) (int64, error) {
	v, err := strconv.ParseInt(field(record, colIdx, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("iotable: column %q: %w", name, err)
	}
	return v, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
