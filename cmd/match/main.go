// Command match loads a preprocessed network binary and a raw trajectory
// CSV, cleans the trajectory, matches it against the network, and writes
// the point-match and route-match CSVs.
//
// New relative to the teacher, which has no batch-matching tool of its
// own; its CSV column-map parsing style follows passbi_core's gtfs parser,
// the same grounding internal/iotable uses.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"roadmatch/internal/cleaning"
	"roadmatch/internal/iotable"
	"roadmatch/internal/match"
	"roadmatch/internal/network"
)

func main() {
	networkPath := flag.String("network", "network.bin", "Path to a preprocessed network binary")
	samplesPath := flag.String("samples", "", "Path to a raw trajectory CSV (columns: lon,lat,timestamp,speed,bearing,type)")
	pointsOut := flag.String("points-out", "points.csv", "Output path for the point-match CSV")
	routesOut := flag.String("routes-out", "routes.csv", "Output path for the route-match CSV")
	maxSpeedForOutlier := flag.Float64("max-outlier-speed", 70, "Drop a fix implying a speed (m/s) at or above this threshold")
	minSpeedForBearing := flag.Float64("min-bearing-speed", 1, "Below this speed (m/s), a fix's bearing is assumed unreliable")
	flag.Parse()

	if *samplesPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: match --network network.bin --samples trajectory.csv [--points-out points.csv] [--routes-out routes.csv]")
		os.Exit(1)
	}

	n, err := network.ReadBinary(*networkPath, nil)
	if err != nil {
		log.Fatalf("match: load network: %v", err)
	}
	proj, err := network.ProjectorFromMeta(n.Meta)
	if err != nil {
		log.Fatalf("match: build projector: %v", err)
	}
	n.SetProjector(proj)
	log.Printf("Loaded network: %d nodes, %d edges", n.NumNodes(), n.NumEdges())

	raw, err := readRawObservations(*samplesPath)
	if err != nil {
		log.Fatalf("match: read samples: %v", err)
	}
	log.Printf("Read %d raw observations", len(raw))

	raw = cleaning.RemoveOutliers(raw, *maxSpeedForOutlier)
	consolidated := cleaning.ProjectAndConsolidateStops(raw, n.Projector(), *minSpeedForBearing)
	samples, err := cleaning.Interpolate(consolidated, time.Second)
	if err != nil {
		log.Fatalf("match: interpolate: %v", err)
	}
	log.Printf("Cleaned to %d evenly-spaced samples", len(samples))

	matcher := match.NewMatcher(n, match.DefaultConfig())
	result, err := matcher.Match(context.Background(), samples)
	if err != nil {
		log.Fatalf("match: %v", err)
	}
	log.Printf("Matched %d samples, %d path steps", len(result.MatchRecords), len(result.Path))

	if err := writeCSV(*pointsOut, func(w io.Writer) error {
		return iotable.WritePointMatch(w, result.MatchRecords)
	}); err != nil {
		log.Fatalf("match: write points: %v", err)
	}
	if err := writeCSV(*routesOut, func(w io.Writer) error {
		return iotable.WriteRouteMatch(w, result.Routes())
	}); err != nil {
		log.Fatalf("match: write routes: %v", err)
	}
	log.Printf("Wrote %s and %s", *pointsOut, *routesOut)
}

func writeCSV(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return write(f)
}

// rawSampleColumns are the header names readRawObservations requires,
// following internal/iotable's column-map-by-name style.
var rawSampleColumns = []string{"lon", "lat", "timestamp", "speed", "bearing"}

func readRawObservations(path string) ([]cleaning.RawObservation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(strings.ToLower(col))] = i
	}

	var missing []string
	for _, col := range rawSampleColumns {
		if _, ok := colIdx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %v", match.ErrInputSchema, missing)
	}
	typeIdx, hasType := colIdx["type"]

	var out []cleaning.RawObservation
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		lon, err := strconv.ParseFloat(record[colIdx["lon"]], 64)
		if err != nil {
			return nil, fmt.Errorf("column lon: %w", err)
		}
		lat, err := strconv.ParseFloat(record[colIdx["lat"]], 64)
		if err != nil {
			return nil, fmt.Errorf("column lat: %w", err)
		}
		ts, err := strconv.ParseInt(record[colIdx["timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column timestamp: %w", err)
		}
		speed, err := strconv.ParseFloat(record[colIdx["speed"]], 64)
		if err != nil {
			return nil, fmt.Errorf("column speed: %w", err)
		}
		bearing, err := strconv.ParseFloat(record[colIdx["bearing"]], 64)
		if err != nil {
			return nil, fmt.Errorf("column bearing: %w", err)
		}
		var typ string
		if hasType && typeIdx < len(record) {
			typ = strings.TrimSpace(record[typeIdx])
		}

		out = append(out, cleaning.RawObservation{
			Lon: lon, Lat: lat, Timestamp: ts, Speed: speed, Bearing: bearing, Type: typ,
		})
	}
	return out, nil
}
