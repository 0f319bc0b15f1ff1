// Package api exposes the agent's local status interface: JSON endpoints for
// the UI to poll and a websocket feed for push updates.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/tracking"
	"github.com/opensky-to/agent-sub001/pkg/version"
)

// NewServer creates and configures the local HTTP server.
func NewServer(addr string, tr *tracking.Tracker, hub *Hub, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	h := &trackerHandler{tracker: tr}
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/conditions", h.handleConditions)
	mux.HandleFunc("GET /api/events", h.handleEvents)
	mux.HandleFunc("GET /api/markers", h.handleMarkers)
	mux.HandleFunc("GET /api/trail", h.handleTrail)
	mux.HandleFunc("GET /api/landings", h.handleLandings)
	mux.HandleFunc("GET /api/resume", h.handleResume)

	if hub != nil {
		mux.HandleFunc("GET /api/ws", hub.HandleWS)
	}

	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush before tearing the server down.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

type trackerHandler struct {
	tracker *tracking.Tracker
}

// StatusResponse is the top-level tracker state for the UI.
type StatusResponse struct {
	Status        model.TrackingStatus `json:"status"`
	Flight        *model.Flight        `json:"flight"`
	CanStart      bool                 `json:"can_start"`
	WarpSavedSec  float64              `json:"warp_saved_sec"`
	AgentVersion  string               `json:"agent_version"`
}

func (h *trackerHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:       h.tracker.Status(),
		Flight:       h.tracker.Flight(),
		CanStart:     h.tracker.CanStartTracking(),
		WarpSavedSec: h.tracker.WarpSaved().Seconds(),
		AgentVersion: version.Version,
	}
	writeJSON(w, resp)
}

func (h *trackerHandler) handleConditions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.Conditions().Snapshot())
}

func (h *trackerHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.Events())
}

func (h *trackerHandler) handleMarkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.Markers())
}

func (h *trackerHandler) handleTrail(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.Trail())
}

func (h *trackerHandler) handleLandings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.TouchDowns())
}

func (h *trackerHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.tracker.Resume())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode API response", "error", err)
	}
}
