package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/kwv/uwbloc/locator"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *locator.StateTracker, world *locator.GridWorld, hub *locator.Hub) http.Handler {
	mux := http.NewServeMux()
	raster := locator.NewSnapshotRenderer(world)
	vector := locator.NewVectorRenderer(world)

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		cycles, reseeds := stateTracker.Counts()
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasCycle  bool      `json:"hasCycle"`
			Cycles    int       `json:"cycles"`
			Reseeds   int       `json:"reseeds"`
			Watchers  int       `json:"watchers"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasCycle:  stateTracker.HasCycle(),
			Cycles:    cycles,
			Reseeds:   reseeds,
			Watchers:  hub.NumWatchers(),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("[HTTP] Error encoding health status: %v", err)
		}
	})

	mux.HandleFunc("/state.json", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latestSnapshot(w, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Printf("[HTTP] Error encoding state: %v", err)
		}
	})

	// Raster render of the latest cycle
	mux.HandleFunc("/live.png", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latestSnapshot(w, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := raster.RenderPNG(w, snap); err != nil {
			log.Printf("[HTTP] Error encoding live PNG: %v", err)
		}
	})

	mux.HandleFunc("/live.svg", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latestSnapshot(w, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vector.RenderToSVG(w, snap); err != nil {
			log.Printf("[HTTP] Error rendering live SVG: %v", err)
		}
	})

	// Vector render rasterized at the renderer's resolution
	mux.HandleFunc("/live-vector.png", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latestSnapshot(w, stateTracker)
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := vector.RenderToPNG(w, snap); err != nil {
			log.Printf("[HTTP] Error rendering vector PNG: %v", err)
		}
	})

	mux.HandleFunc("/particles.geojson", func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latestSnapshot(w, stateTracker)
		if !ok {
			return
		}
		data, err := locator.SnapshotToFeatureCollection(world, snap).MarshalJSON()
		if err != nil {
			log.Printf("[HTTP] Error encoding GeoJSON: %v", err)
			http.Error(w, "Failed to encode GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing GeoJSON: %v", err)
		}
	})

	mux.Handle("/ws", hub)

	return mux
}

// latestSnapshot writes 503 and returns false until the first cycle completes
func latestSnapshot(w http.ResponseWriter, stateTracker *locator.StateTracker) (locator.Snapshot, bool) {
	snap, ok := stateTracker.GetSnapshot()
	if !ok {
		http.Error(w, "No cycle available", http.StatusServiceUnavailable)
	}
	return snap, ok
}
