// Command preprocess builds a binary road network from an OSM PBF extract
// or a SUMO plain-XML network, filters it to its largest connected
// component, and writes it to disk for cmd/server and cmd/match to load.
//
// Adapted from the teacher's cmd/preprocess, generalized to pick an importer
// by input format and to skip the Contraction Hierarchies step entirely:
// shortest-path preprocessing has no role in map matching.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"roadmatch/internal/network"
	"roadmatch/internal/osmimport"
	"roadmatch/internal/sumoimport"
)

func main() {
	input := flag.String("input", "", "Path to a .osm.pbf or SUMO .net.xml file")
	output := flag.String("output", "network.bin", "Output binary network file path")
	format := flag.String("format", "", "Input format: osm or sumo (default: inferred from the input extension)")
	bbox := flag.String("bbox", "", "OSM bounding box filter: minLat,minLon,maxLat,maxLon")
	skipFilter := flag.Bool("skip-component-filter", false, "Keep the network as imported, without restricting to its largest connected component")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file> [--format osm|sumo] [--output network.bin] [--bbox minLat,minLon,maxLat,maxLon]")
		os.Exit(1)
	}

	fmtName := *format
	if fmtName == "" {
		fmtName = inferFormat(*input)
	}

	start := time.Now()
	var n *network.Network

	switch fmtName {
	case "osm":
		var err error
		n, err = importOSM(*input, *bbox)
		if err != nil {
			log.Fatalf("preprocess: %v", err)
		}
	case "sumo":
		var err error
		n, err = importSUMO(*input)
		if err != nil {
			log.Fatalf("preprocess: %v", err)
		}
	default:
		log.Fatalf("preprocess: unrecognized format %q, pass --format osm or --format sumo", fmtName)
	}
	log.Printf("Imported network: %d nodes, %d edges", n.NumNodes(), n.NumEdges())

	if !*skipFilter {
		log.Println("Extracting largest connected component...")
		filtered, err := n.FilterToLargestComponent()
		if err != nil {
			log.Fatalf("preprocess: filter to largest component: %v", err)
		}
		log.Printf("Filtered network: %d nodes, %d edges (from %d, %d)", filtered.NumNodes(), filtered.NumEdges(), n.NumNodes(), n.NumEdges())
		n = filtered
	}

	log.Printf("Writing binary to %s...", *output)
	if err := network.WriteBinary(n, *output); err != nil {
		log.Fatalf("preprocess: write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	var size float64
	if info != nil {
		size = float64(info.Size()) / (1024 * 1024)
	}
	log.Printf("Done in %s. Output: %s (%.1f MB)", time.Since(start).Round(time.Second), *output, size)
}

func inferFormat(path string) string {
	switch {
	case strings.HasSuffix(path, ".osm.pbf"), strings.HasSuffix(path, ".pbf"):
		return "osm"
	case strings.HasSuffix(path, ".net.xml"), strings.HasSuffix(path, ".xml"):
		return "sumo"
	default:
		return ""
	}
}

func importOSM(path, bboxFlag string) (*network.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var opts osmimport.Options
	if bboxFlag != "" {
		var minLat, minLon, maxLat, maxLon float64
		if _, err := fmt.Sscanf(bboxFlag, "%f,%f,%f,%f", &minLat, &minLon, &maxLat, &maxLon); err != nil {
			return nil, fmt.Errorf("invalid bbox format (expected minLat,minLon,maxLat,maxLon): %w", err)
		}
		opts.BBox = osmimport.BBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lon [%.4f, %.4f]", minLat, maxLat, minLon, maxLon)
	}

	log.Println("Parsing OSM PBF data...")
	builder, meta, err := osmimport.Import(context.Background(), f, opts)
	if err != nil {
		return nil, fmt.Errorf("parse OSM data: %w", err)
	}

	n, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	n.Meta = meta
	return n, nil
}

func importSUMO(path string) (*network.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	log.Println("Parsing SUMO network...")
	builder, meta, err := sumoimport.Import(f)
	if err != nil {
		return nil, fmt.Errorf("parse SUMO network: %w", err)
	}

	n, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build network: %w", err)
	}
	n.Meta = meta
	proj, err := network.ProjectorFromMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("build projector: %w", err)
	}
	n.SetProjector(proj)
	return n, nil
}
