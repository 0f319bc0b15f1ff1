package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/request"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rc := request.New(5*time.Second, 1, time.Millisecond)
	return NewHTTPClient(srv.URL, "test-token", rc)
}

func TestHTTPClient_Ping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ping", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	require.NoError(t, c.Ping(context.Background()))
}

func TestHTTPClient_AbortFlight(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/flights/"+id.String()+"/abort", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	require.NoError(t, c.AbortFlight(context.Background(), id))
}

func TestHTTPClient_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "flight not found"})
	})

	err := c.AbortFlight(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flight not found")
}

func TestHTTPClient_PositionReport(t *testing.T) {
	id := uuid.New()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var report PositionReport
		require.NoError(t, json.NewDecoder(r.Body).Decode(&report))
		assert.Equal(t, id, report.FlightID)
		assert.InDelta(t, 47.46, report.Lat, 0.01)
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	err := c.PositionReport(context.Background(), PositionReport{
		FlightID: id,
		Lat:      47.46,
		Lon:      8.55,
	})
	require.NoError(t, err)
}

func TestHTTPClient_DownloadFlightAutoSave(t *testing.T) {
	savedAt := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name    string
		data    any
		wantNil bool
	}{
		{"Present", AutoSave{FlightLog: "aGVsbG8=", SavedAt: savedAt}, false},
		{"Missing", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"success": true, "data": tt.data})
			})

			save, err := c.DownloadFlightAutoSave(context.Background(), uuid.New())
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, save)
				return
			}
			require.NotNil(t, save)
			assert.Equal(t, "aGVsbG8=", save.FlightLog)
			assert.True(t, save.SavedAt.Equal(savedAt))
		})
	}
}
