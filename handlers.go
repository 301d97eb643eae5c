package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kwv/tpsmesh/rpm"
)

// statusEntry is one row of the /status response.
type statusEntry struct {
	SourceID   string       `json:"sourceId"`
	PointCount int          `json:"pointCount"`
	Registered bool         `json:"registered"`
	Summary    *rpm.Summary `json:"summary,omitempty"`
	Timestamp  *time.Time   `json:"timestamp,omitempty"`
}

// Routes returns the HTTP mux for service mode.
func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", a.handleStatus)
	mux.HandleFunc("/render.png", a.handleRender)
	mux.HandleFunc("/render.svg", a.handleRender)
	return mux
}

// handleStatus reports every configured source, its latest point count and
// its latest registration summary.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries := make([]statusEntry, 0, len(a.config.Sources))
	for _, src := range a.config.Sources {
		entry := statusEntry{SourceID: src.ID}
		if pts, ok := a.state.Points(src.ID); ok {
			rows, _ := pts.Dims()
			entry.PointCount = rows
		}
		if reg, ok := a.state.Registration(src.ID); ok {
			entry.Registered = true
			summary := reg.Summary
			entry.Summary = &summary
			ts := reg.Timestamp
			entry.Timestamp = &ts
		}
		entries = append(entries, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reference": a.config.Reference,
		"sources":   entries,
	})
}

// handleRender draws the latest registration of the requested source as PNG
// or SVG, depending on the path.
func (a *App) handleRender(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		http.Error(w, "missing source parameter", http.StatusBadRequest)
		return
	}

	reg, ok := a.state.Registration(sourceID)
	if !ok {
		http.Error(w, fmt.Sprintf("no registration for source %q", sourceID), http.StatusNotFound)
		return
	}
	source, ok := a.state.Points(sourceID)
	if !ok {
		http.Error(w, fmt.Sprintf("no points for source %q", sourceID), http.StatusNotFound)
		return
	}
	target, ok := a.state.Points(a.config.Reference)
	if !ok {
		http.Error(w, "no reference points", http.StatusNotFound)
		return
	}

	renderer := rpm.NewResultRenderer(source, target, reg.Result)

	switch r.URL.Path {
	case "/render.svg":
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := renderer.RenderToSVG(w); err != nil {
			http.Error(w, fmt.Sprintf("render failed: %v", err), http.StatusInternalServerError)
		}
	default:
		w.Header().Set("Content-Type", "image/png")
		if err := renderer.RenderToPNG(w); err != nil {
			http.Error(w, fmt.Sprintf("render failed: %v", err), http.StatusInternalServerError)
		}
	}
}
