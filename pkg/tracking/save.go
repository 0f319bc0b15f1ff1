package tracking

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/opensky-to/agent-sub001/pkg/geo"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/store"
	"github.com/opensky-to/agent-sub001/pkg/version"
)

// flightLogVersion is bumped on incompatible save format changes.
const flightLogVersion = 2

const saveFileExt = ".osfl.gz"

// FlightLog is the on-disk (and cloud) save format: everything needed to
// restore a paused session on this or another machine.
type FlightLog struct {
	Version      int       `json:"version"`
	AgentVersion string    `json:"agent_version"`
	AgentID      uuid.UUID `json:"agent_id"`
	User         string    `json:"user"`
	TZOffsetMin  int       `json:"tz_offset_min"`
	SavedAt      time.Time `json:"saved_at"`

	FlightID       uuid.UUID        `json:"flight_id"`
	Registry       string           `json:"registry"`
	Origin         model.Airport    `json:"origin"`
	Destination    model.Airport    `json:"destination"`
	Alternate      model.Airport    `json:"alternate"`
	FuelGallons    float64          `json:"fuel_gallons"`
	PayloadPounds  float64          `json:"payload_pounds"`
	PayloadSummary string           `json:"payload_summary"`
	NavLog         []model.Waypoint `json:"nav_log,omitempty"`

	TrackingStarted        time.Time     `json:"tracking_started"`
	TrackingStopped        time.Time     `json:"tracking_stopped"`
	WasAirborne            bool          `json:"was_airborne"`
	GroundHandlingComplete bool          `json:"ground_handling_complete"`
	WarpSaved              time.Duration `json:"warp_saved"`
	PausedTotal            time.Duration `json:"paused_total"`
	OnlineDuration         time.Duration `json:"online_duration"`

	Resume *ResumeState `json:"resume,omitempty"`

	Events     []model.EventLogEntry `json:"events"`
	Markers    []model.EventMarker   `json:"markers"`
	Trail      []model.TrailPoint    `json:"trail"`
	TouchDowns []model.TouchDown     `json:"touchdowns"`
}

func (t *Tracker) savePath(flightID uuid.UUID) string {
	return filepath.Join(t.cfg.Agent.DataDir, "flights", flightID.String()+saveFileExt)
}

// acquireSave takes the save lock, giving up after the configured timeout so
// a stuck upload can never wedge the pause path forever.
func (t *Tracker) acquireSave() error {
	timeout := t.cfg.Tracking.SaveMutexTimeout.Std()
	select {
	case t.saveSem <- struct{}{}:
		return nil
	case <-time.After(timeout):
		return ErrSaveMutexTimeout
	}
}

func (t *Tracker) releaseSave() {
	<-t.saveSem
}

// saveFlightLog writes the current session to disk under the save lock.
func (t *Tracker) saveFlightLog(ctx context.Context) error {
	if err := t.acquireSave(); err != nil {
		return err
	}
	defer t.releaseSave()
	return t.writeFlightLogLocked(ctx)
}

// writeFlightLogLocked builds and writes the save file. Caller holds the
// save lock.
func (t *Tracker) writeFlightLogLocked(ctx context.Context) error {
	t.mu.RLock()
	flight := t.flight
	t.mu.RUnlock()
	if flight == nil {
		return ErrNoFlight
	}

	fl := t.buildFlightLog(flight)

	data, err := json.MarshalIndent(fl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flight log: %w", err)
	}

	path := t.savePath(flight.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create save dir: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("failed to compress flight log: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress flight log: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write flight log: %w", err)
	}

	// Uncompressed sibling for eyeballing save issues; best effort.
	debugPath := strings.TrimSuffix(path, ".gz") + ".json"
	if err := os.WriteFile(debugPath, data, 0o644); err != nil {
		slog.Debug("failed to write debug flight log", "path", debugPath, "error", err)
	}

	if err := t.st.RecordSave(ctx, store.SaveRecord{
		FlightID: flight.ID.String(),
		Path:     path,
		SavedAt:  fl.SavedAt,
	}); err != nil {
		slog.Error("failed to index flight save", "flight", flight.ID, "error", err)
	}

	slog.Debug("flight log saved", "flight", flight.ID, "bytes", buf.Len())
	return nil
}

func (t *Tracker) buildFlightLog(flight *model.Flight) *FlightLog {
	_, tzOffset := time.Now().Zone()
	fl := &FlightLog{
		Version:        flightLogVersion,
		AgentVersion:   version.Version,
		AgentID:        t.agentID,
		User:           t.cfg.Agent.User,
		TZOffsetMin:    tzOffset / 60,
		SavedAt:        time.Now().UTC(),
		FlightID:       flight.ID,
		Registry:       flight.Registry,
		Origin:         flight.Origin,
		Destination:    flight.Destination,
		Alternate:      flight.Alternate,
		FuelGallons:    flight.FuelGallons,
		PayloadPounds:  flight.PayloadPounds,
		PayloadSummary: flight.PayloadSummary,
		NavLog:         flight.NavLog,
	}

	t.mu.RLock()
	fl.TrackingStarted = t.trackingStarted
	fl.TrackingStopped = t.trackingStopped
	fl.WasAirborne = t.wasAirborne
	fl.GroundHandlingComplete = t.groundHandlingComplete
	fl.WarpSaved = t.warpSaved
	fl.PausedTotal = t.pausedTotal
	fl.OnlineDuration = t.onlineDuration
	t.mu.RUnlock()

	t.resumeMu.Lock()
	if t.resume != nil {
		r := *t.resume
		fl.Resume = &r
	}
	t.resumeMu.Unlock()

	t.logMu.Lock()
	fl.Events = append([]model.EventLogEntry(nil), t.eventLog...)
	t.logMu.Unlock()

	// Airport and waypoint markers are regenerated from the flight on load,
	// no point in saving them.
	t.markersMu.Lock()
	for _, m := range t.markers {
		if m.IsAirportMarker || m.IsWaypoint {
			continue
		}
		fl.Markers = append(fl.Markers, *m)
	}
	t.markersMu.Unlock()

	t.trailMu.Lock()
	fl.Trail = append([]model.TrailPoint(nil), t.trail...)
	t.trailMu.Unlock()

	t.touchdownsMu.Lock()
	fl.TouchDowns = append([]model.TouchDown(nil), t.touchdowns...)
	t.touchdownsMu.Unlock()

	return fl
}

// encodeFlightLog returns the current session as base64-wrapped gzip JSON,
// the transport encoding for uploads. Caller holds the save lock.
func (t *Tracker) encodeFlightLog() (string, error) {
	t.mu.RLock()
	flight := t.flight
	t.mu.RUnlock()
	if flight == nil {
		return "", ErrNoFlight
	}

	data, err := json.Marshal(t.buildFlightLog(flight))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// prepareResume makes sure the freshest save is on disk (cloud wins on a
// newer timestamp) and restores the session from it.
func (t *Tracker) prepareResume(ctx context.Context, flight *model.Flight) error {
	t.reconcileCloudSave(ctx, flight)
	return t.loadFlightLog(flight)
}

// reconcileCloudSave downloads the backend's auto-save when it is newer than
// the local file, or when no local file exists. Download failures are logged
// and ignored; the local save may still be usable.
func (t *Tracker) reconcileCloudSave(ctx context.Context, flight *model.Flight) {
	save, err := t.backend.DownloadFlightAutoSave(ctx, flight.ID)
	if err != nil {
		slog.Warn("failed to check cloud auto-save", "flight", flight.ID, "error", err)
		return
	}
	if save == nil {
		return
	}

	path := t.savePath(flight.ID)
	if info, err := os.Stat(path); err == nil && !save.SavedAt.After(info.ModTime()) {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(save.FlightLog)
	if err != nil {
		slog.Error("cloud auto-save is not valid base64", "flight", flight.ID, "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Error("failed to create save dir", "error", err)
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		slog.Error("failed to write cloud auto-save", "path", path, "error", err)
		return
	}
	slog.Info("downloaded newer cloud auto-save", "flight", flight.ID, "saved_at", save.SavedAt)
}

// loadFlightLog restores a session from the save file, after validating that
// it belongs to this agent and this flight.
func (t *Tracker) loadFlightLog(flight *model.Flight) error {
	path := t.savePath(flight.ID)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoSaveFile
		}
		return fmt.Errorf("failed to read flight save: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decompress flight save: %w", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("failed to decompress flight save: %w", err)
	}

	var fl FlightLog
	if err := json.Unmarshal(data, &fl); err != nil {
		return fmt.Errorf("failed to parse flight save: %w", err)
	}

	if fl.AgentID != t.agentID {
		return ErrAgentMismatch
	}
	if fl.FlightID != flight.ID ||
		fl.Origin.ICAO != flight.Origin.ICAO ||
		fl.Destination.ICAO != flight.Destination.ICAO {
		return ErrFlightMismatch
	}

	t.mu.Lock()
	t.trackingStarted = fl.TrackingStarted
	t.trackingStopped = fl.TrackingStopped
	t.pausedTotal = fl.PausedTotal
	// The pause clock keeps running across processes; the save timestamp is
	// when it started.
	t.pausedAt = fl.SavedAt
	t.wasAirborne = fl.WasAirborne
	t.groundHandlingComplete = fl.GroundHandlingComplete
	t.warpSaved = fl.WarpSaved
	t.onlineDuration = fl.OnlineDuration
	t.mu.Unlock()

	t.resumeMu.Lock()
	t.resume = fl.Resume
	t.resumeMu.Unlock()

	t.logMu.Lock()
	t.eventLog = fl.Events
	t.logMu.Unlock()

	t.markersMu.Lock()
	t.markers = nil
	for i := range fl.Markers {
		m := fl.Markers[i]
		t.markers = append(t.markers, &m)
	}
	// Old markers are no coalescing anchor for the resumed session.
	t.lastMarker = nil
	t.markersMu.Unlock()

	t.addAirportMarkers(flight)

	nav := flight.NavLog
	if len(nav) == 0 {
		nav = fl.NavLog
	}
	t.addNavLogMarkers(nav)

	t.trailMu.Lock()
	t.trail = fl.Trail
	if n := len(fl.Trail); n > 0 {
		last := fl.Trail[n-1]
		t.lastTrailPos = &geo.Point{Lat: last.Lat, Lon: last.Lon}
		t.lastTrailHdg = last.Heading
	} else {
		t.lastTrailPos = nil
	}
	t.trailMu.Unlock()

	t.touchdownsMu.Lock()
	t.touchdowns = fl.TouchDowns
	t.touchdownsMu.Unlock()

	slog.Info("flight save restored", "flight", flight.ID,
		"saved_at", fl.SavedAt, "events", len(fl.Events), "trail_points", len(fl.Trail))
	return nil
}

// deleteSave removes the save file, its debug sibling and the index row.
func (t *Tracker) deleteSave(ctx context.Context, flightID uuid.UUID) {
	path := t.savePath(flightID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove flight save", "path", path, "error", err)
	}
	debugPath := strings.TrimSuffix(path, ".gz") + ".json"
	if err := os.Remove(debugPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove debug flight save", "path", debugPath, "error", err)
	}
	if err := t.st.DeleteSave(ctx, flightID.String()); err != nil {
		slog.Warn("failed to remove flight save index row", "flight", flightID, "error", err)
	}
}
