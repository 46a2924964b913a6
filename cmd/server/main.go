// Command server loads a preprocessed network binary and serves the
// map-matching HTTP API over it.
//
// Adapted from the teacher's cmd/server, which loads a CH graph and builds
// a routing.Engine; this loads a network.Network and builds internal/api's
// match/health/stats handlers instead.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"roadmatch/internal/api"
	"roadmatch/internal/match"
	"roadmatch/internal/network"
)

func main() {
	networkPath := flag.String("network", "network.bin", "Path to a preprocessed network binary")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	start := time.Now()

	log.Printf("Loading network from %s...", *networkPath)
	n, err := network.ReadBinary(*networkPath, nil)
	if err != nil {
		log.Fatalf("Failed to load network: %v", err)
	}
	proj, err := network.ProjectorFromMeta(n.Meta)
	if err != nil {
		log.Fatalf("Failed to build coordinate projector: %v", err)
	}
	n.SetProjector(proj)
	log.Printf("Loaded: %d nodes, %d edges", n.NumNodes(), n.NumEdges())

	// Reclaim memory from init-time temporaries, the way the teacher's
	// cmd/server does after building its spatial index.
	runtime.GC()
	debug.FreeOSMemory()

	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin

	handlers := api.NewHandlers(n, match.DefaultConfig(), api.DefaultCleaningOptions())
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
