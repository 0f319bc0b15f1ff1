package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.backend.pauseErr = errors.New("stay resumable")
	f := startTracking(t, env)

	env.tracker.addEvent(47.0, 8.0, 1400, model.EventLights, model.ColorInfo, "Beacon light on")
	// The pause itself appends one final event before the save is written.
	wantEvents := len(env.tracker.Events()) + 1

	env.tracker.StopTracking(context.Background(), true)
	require.Equal(t, model.StatusResuming, env.tracker.Status())
	require.FileExists(t, env.tracker.savePath(f.ID))

	// A second tracker on the same machine picks the session back up.
	tr2, err := New(env.tracker.cfg, newFakeSource(), env.backend, env.store)
	require.NoError(t, err)
	require.Equal(t, env.tracker.agentID, tr2.agentID, "agent identity is persistent")

	resumed := *f
	resumed.Resume = true
	env.backend.pauseErr = nil
	require.NoError(t, tr2.SetFlight(context.Background(), &resumed))

	assert.Equal(t, model.StatusResuming, tr2.Status())
	assert.Len(t, tr2.Events(), wantEvents, "event log survives the round trip")
	assert.NotNil(t, tr2.Resume(), "resume state staged from the save")

	var airports int
	for _, m := range tr2.Markers() {
		if m.IsAirportMarker {
			airports++
		}
	}
	assert.Equal(t, 2, airports, "airport markers are regenerated, not persisted")
}

func TestLoadRejectsForeignAgent(t *testing.T) {
	env := newTestEnv(t)
	f := testFlight()

	writeSave(t, env, &FlightLog{
		Version:     flightLogVersion,
		AgentID:     uuid.New(), // some other installation
		FlightID:    f.ID,
		Origin:      f.Origin,
		Destination: f.Destination,
		SavedAt:     time.Now().UTC(),
	}, f.ID)

	err := env.tracker.loadFlightLog(f)
	assert.ErrorIs(t, err, ErrAgentMismatch)
}

func TestLoadRejectsWrongFlight(t *testing.T) {
	env := newTestEnv(t)
	f := testFlight()

	writeSave(t, env, &FlightLog{
		Version:     flightLogVersion,
		AgentID:     env.tracker.agentID,
		FlightID:    f.ID,
		Origin:      model.Airport{ICAO: "XXXX"}, // route mismatch
		Destination: f.Destination,
		SavedAt:     time.Now().UTC(),
	}, f.ID)

	err := env.tracker.loadFlightLog(f)
	assert.ErrorIs(t, err, ErrFlightMismatch)
}

func TestSaveCarriesFlightMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.tracker.cfg.Agent.User = "testpilot"
	f := startTracking(t, env)

	require.NoError(t, env.tracker.saveFlightLog(context.Background()))

	data, err := os.ReadFile(strings.TrimSuffix(env.tracker.savePath(f.ID), ".gz") + ".json")
	require.NoError(t, err)
	var fl FlightLog
	require.NoError(t, json.Unmarshal(data, &fl))

	assert.Equal(t, "testpilot", fl.User)
	assert.Equal(t, "HB-ABC", fl.Registry)
	assert.Equal(t, f.Origin, fl.Origin)
	assert.Equal(t, f.Destination, fl.Destination)
	assert.InDelta(t, 40.0, fl.FuelGallons, 0.001)
	assert.InDelta(t, 350.0, fl.PayloadPounds, 0.001)
	assert.False(t, fl.TrackingStarted.IsZero())
}

func TestLoadRestoresNavLogFromSave(t *testing.T) {
	env := newTestEnv(t)
	f := testFlight()

	writeSave(t, env, &FlightLog{
		Version:     flightLogVersion,
		AgentID:     env.tracker.agentID,
		FlightID:    f.ID,
		Origin:      f.Origin,
		Destination: f.Destination,
		NavLog:      []model.Waypoint{{Ident: "WIL", Lat: 47.27, Lon: 8.05}},
		SavedAt:     time.Now().UTC(),
	}, f.ID)

	require.NoError(t, env.tracker.loadFlightLog(f))

	var waypoints int
	for _, m := range env.tracker.Markers() {
		if m.IsWaypoint {
			waypoints++
		}
	}
	assert.Equal(t, 1, waypoints, "waypoint markers are regenerated from the save")
}

func TestLoadMissingSave(t *testing.T) {
	env := newTestEnv(t)
	err := env.tracker.loadFlightLog(testFlight())
	assert.ErrorIs(t, err, ErrNoSaveFile)
}

func TestResumeFailureRevertsFlight(t *testing.T) {
	env := newTestEnv(t)

	f := testFlight()
	f.Resume = true
	err := env.tracker.SetFlight(context.Background(), f)
	require.Error(t, err, "no save anywhere, resume must fail")
	assert.Nil(t, env.tracker.Flight())
	assert.Equal(t, model.StatusNotTracking, env.tracker.Status())
}

func TestSaveIndexedInStore(t *testing.T) {
	env := newTestEnv(t)
	f := startTracking(t, env)

	require.NoError(t, env.tracker.saveFlightLog(context.Background()))

	recs, err := env.store.ListSaves(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, f.ID.String(), recs[0].FlightID)
}

func TestSaveMutexTimeout(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	require.NoError(t, env.tracker.acquireSave())
	defer env.tracker.releaseSave()

	err := env.tracker.saveFlightLog(context.Background())
	assert.ErrorIs(t, err, ErrSaveMutexTimeout)
}

func writeSave(t *testing.T, env *testEnv, fl *FlightLog, flightID uuid.UUID) {
	t.Helper()

	data, err := json.Marshal(fl)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := env.tracker.savePath(flightID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}
