package tracking

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/config"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
	"github.com/opensky-to/agent-sub001/pkg/store"
)

// fakeSource satisfies sim.Source without a simulator.
type fakeSource struct {
	*sim.RateTable
	refreshes []sim.Stream
}

func newFakeSource() *fakeSource {
	return &fakeSource{RateTable: sim.NewRateTable()}
}

func (f *fakeSource) RequestRefresh(s sim.Stream) { f.refreshes = append(f.refreshes, s) }
func (f *fakeSource) Close() error                { return nil }

// fakeBackend records calls and returns scripted errors.
type fakeBackend struct {
	mu sync.Mutex

	pauseErr    error
	completeErr error
	autoSave    *backend.AutoSave

	aborted   []uuid.UUID
	paused    []uuid.UUID
	completed []backend.FinalReport
	positions []backend.PositionReport
	uploads   []string
}

func (f *fakeBackend) Ping(context.Context) error { return nil }

func (f *fakeBackend) AbortFlight(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, id)
	return nil
}

func (f *fakeBackend) PauseFlight(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.paused = append(f.paused, id)
	return nil
}

func (f *fakeBackend) CompleteFlight(_ context.Context, final backend.FinalReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed = append(f.completed, final)
	return nil
}

func (f *fakeBackend) PositionReport(_ context.Context, r backend.PositionReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, r)
	return nil
}

func (f *fakeBackend) UploadFlightAutoSave(_ context.Context, _ uuid.UUID, log string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, log)
	return nil
}

func (f *fakeBackend) DownloadFlightAutoSave(_ context.Context, _ uuid.UUID) (*backend.AutoSave, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoSave, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu sync.Mutex

	statuses []model.TrackingStatus
	markers  []model.EventMarker
	landings []model.LandingReportTiming
	aborts   []model.AbortReason
	resumes  []bool
}

func (f *fakeNotifier) FlightChanged(*model.Flight)     {}
func (f *fakeNotifier) LocationChanged(_, _, _ float64) {}

func (f *fakeNotifier) TrackingStatusChanged(s model.TrackingStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, s)
}

func (f *fakeNotifier) TrackingEventMarkerAdded(m model.EventMarker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, m)
}

func (f *fakeNotifier) LandingReported(timing model.LandingReportTiming, _ *model.TouchDown) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.landings = append(f.landings, timing)
}

func (f *fakeNotifier) TrackingAborted(reason model.AbortReason, resumeAllowed bool, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, reason)
	f.resumes = append(f.resumes, resumeAllowed)
}

func (f *fakeNotifier) lastAbort() (model.AbortReason, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.aborts) == 0 {
		return "", false
	}
	return f.aborts[len(f.aborts)-1], true
}

func (f *fakeNotifier) landingTimings() []model.LandingReportTiming {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LandingReportTiming(nil), f.landings...)
}

func (f *fakeNotifier) lastResumeAllowed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes[len(f.resumes)-1]
}

type testEnv struct {
	tracker  *Tracker
	source   *fakeSource
	backend  *fakeBackend
	notifier *fakeNotifier
	store    *store.SQLiteStore
	dataDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Agent.DataDir = dir
	cfg.Tracking.SettleDelay = 0
	cfg.Tracking.SaveMutexTimeout = config.Duration(time.Second)

	st, err := store.Open(filepath.Join(dir, "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	src := newFakeSource()
	be := &fakeBackend{}
	tr, err := New(cfg, src, be, st)
	require.NoError(t, err)

	n := &fakeNotifier{}
	tr.Subscribe(n)

	return &testEnv{tracker: tr, source: src, backend: be, notifier: n, store: st, dataDir: dir}
}

func testFlight() *model.Flight {
	return &model.Flight{
		ID:                  uuid.New(),
		Registry:            "HB-ABC",
		AircraftType:        "C172",
		EngineClass:         model.EnginePiston,
		Origin:              model.Airport{ICAO: "LSZH", Name: "Zurich", Lat: 47.4647, Lon: 8.5492},
		Destination:         model.Airport{ICAO: "LSGG", Name: "Geneva", Lat: 46.2381, Lon: 6.1090},
		FuelGallons:         40,
		PayloadPounds:       350,
		PayloadDeltaAllowed: 50,
	}
}

// satisfyConditions marks every blocking condition as met.
func satisfyConditions(tr *Tracker) {
	for _, name := range []ConditionName{
		ConditionPayload, ConditionPlaneModel, ConditionRealism, ConditionLocation,
	} {
		tr.Conditions().Update(name, "ok", true)
	}
}

// primaryAt builds a stationary on-ground primary snapshot.
func primaryAt(lat, lon float64) *sim.PrimaryTelemetry {
	return &sim.PrimaryTelemetry{
		Lat:         lat,
		Lon:         lon,
		AltitudeMSL: 1416,
		SimRate:     1,
		OnGround:    true,
	}
}

// startTracking drives the tracker from a fresh flight into full tracking.
func startTracking(t *testing.T, env *testEnv) *model.Flight {
	t.Helper()

	f := testFlight()
	require.NoError(t, env.tracker.SetFlight(context.Background(), f))
	satisfyConditions(env.tracker)

	require.NoError(t, env.tracker.StartTracking(context.Background()))
	require.Equal(t, model.StatusGroundOperations, env.tracker.Status())

	env.tracker.SetGroundHandlingComplete(true)
	require.NoError(t, env.tracker.StartTracking(context.Background()))
	require.Equal(t, model.StatusTracking, env.tracker.Status())

	// Seed the latest-position snapshot at the origin.
	p := primaryAt(f.Origin.Lat, f.Origin.Lon)
	env.tracker.processPrimary(sim.Pair[sim.PrimaryTelemetry]{Old: p, New: p})
	return f
}
