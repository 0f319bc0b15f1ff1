package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/config"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
	"github.com/opensky-to/agent-sub001/pkg/store"
	"github.com/opensky-to/agent-sub001/pkg/tracking"
)

type stubSource struct{ *sim.RateTable }

func (stubSource) RequestRefresh(sim.Stream) {}
func (stubSource) Close() error              { return nil }

type stubBackend struct{}

func (stubBackend) Ping(context.Context) error                                    { return nil }
func (stubBackend) AbortFlight(context.Context, uuid.UUID) error                  { return nil }
func (stubBackend) PauseFlight(context.Context, uuid.UUID) error                  { return nil }
func (stubBackend) CompleteFlight(context.Context, backend.FinalReport) error     { return nil }
func (stubBackend) PositionReport(context.Context, backend.PositionReport) error  { return nil }
func (stubBackend) UploadFlightAutoSave(context.Context, uuid.UUID, string) error { return nil }
func (stubBackend) DownloadFlightAutoSave(context.Context, uuid.UUID) (*backend.AutoSave, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *tracking.Tracker, *Hub) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Agent.DataDir = dir

	st, err := store.Open(filepath.Join(dir, "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	tr, err := tracking.New(cfg, stubSource{sim.NewRateTable()}, stubBackend{}, st)
	require.NoError(t, err)

	hub := NewHub()
	tr.Subscribe(hub)

	srv := NewServer("localhost:0", tr, hub, func() {})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)
	return ts, tr, hub
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, model.StatusNotTracking, status.Status)
	assert.Nil(t, status.Flight)
}

func TestConditionsEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.Conditions().Update("fuel", "39.8 gal", true)

	resp, err := http.Get(ts.URL + "/api/conditions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var conds []tracking.Condition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conds))
	require.Len(t, conds, 7)

	var fuel *tracking.Condition
	for i := range conds {
		if conds[i].Name == "fuel" {
			fuel = &conds[i]
		}
	}
	require.NotNil(t, fuel)
	assert.True(t, fuel.Met)
	assert.Equal(t, "39.8 gal", fuel.Current)
}

func TestWebsocketPush(t *testing.T) {
	ts, _, hub := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the hub a beat to register the client.
	time.Sleep(50 * time.Millisecond)
	hub.TrackingStatusChanged(model.StatusTracking)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, string(model.StatusTracking), msg.Data)
}
