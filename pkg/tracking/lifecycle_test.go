package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

func TestSetFlightRejectedWhileActive(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	err := env.tracker.SetFlight(context.Background(), testFlight())
	assert.ErrorIs(t, err, ErrTrackingActive)
}

func TestStartTrackingRequiresFlight(t *testing.T) {
	env := newTestEnv(t)
	err := env.tracker.StartTracking(context.Background())
	assert.ErrorIs(t, err, ErrNoFlight)
}

func TestStartTrackingRequiresConditions(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.tracker.SetFlight(context.Background(), testFlight()))

	err := env.tracker.StartTracking(context.Background())
	assert.ErrorIs(t, err, ErrConditionsNotMet)
}

func TestStartTrackingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.tracker.SetFlight(context.Background(), testFlight()))
	satisfyConditions(env.tracker)
	assert.Equal(t, model.StatusPreparing, env.tracker.Status())

	// Ground handling incomplete: enter ground operations first.
	require.NoError(t, env.tracker.StartTracking(context.Background()))
	assert.Equal(t, model.StatusGroundOperations, env.tracker.Status())

	// A second start during ground operations is rejected until handling
	// completes.
	err := env.tracker.StartTracking(context.Background())
	assert.ErrorIs(t, err, ErrGroundHandlingIncomplete)

	env.tracker.SetGroundHandlingComplete(true)
	require.NoError(t, env.tracker.StartTracking(context.Background()))
	assert.Equal(t, model.StatusTracking, env.tracker.Status())

	events := env.tracker.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "Flight tracking started", events[0].Message)
}

func TestStartTrackingRejectsRunningEngines(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.tracker.SetFlight(context.Background(), testFlight()))
	satisfyConditions(env.tracker)

	sec := &sim.SecondaryTelemetry{EngineRunning: true, FuelGallons: 40, PayloadPounds: 350}
	env.tracker.processSecondary(sim.Pair[sim.SecondaryTelemetry]{Old: sec, New: sec})

	err := env.tracker.StartTracking(context.Background())
	assert.ErrorIs(t, err, ErrEnginesRunning)
}

func TestCanStartTrackingRequiresFlight(t *testing.T) {
	env := newTestEnv(t)

	satisfyConditions(env.tracker)
	assert.False(t, env.tracker.CanStartTracking(), "no flight assigned")

	require.NoError(t, env.tracker.SetFlight(context.Background(), testFlight()))
	satisfyConditions(env.tracker)
	assert.True(t, env.tracker.CanStartTracking())
}

func TestStopTrackingResumeLaterFromResumingKeepsSave(t *testing.T) {
	env := newTestEnv(t)
	env.backend.pauseErr = errors.New("backend down")
	f := startTracking(t, env)

	env.tracker.StopTracking(context.Background(), true)
	require.Equal(t, model.StatusResuming, env.tracker.Status())
	require.FileExists(t, env.tracker.savePath(f.ID))

	// A second resume-requested stop must not downgrade to a discard.
	env.tracker.StopTracking(context.Background(), true)

	assert.Equal(t, model.StatusResuming, env.tracker.Status())
	assert.NotNil(t, env.tracker.Flight())
	assert.FileExists(t, env.tracker.savePath(f.ID))
}

func TestStopTrackingDiscard(t *testing.T) {
	env := newTestEnv(t)
	f := startTracking(t, env)

	env.tracker.StopTracking(context.Background(), false)

	assert.Equal(t, model.StatusNotTracking, env.tracker.Status())
	assert.Nil(t, env.tracker.Flight())
	assert.Empty(t, env.tracker.Events())
	assert.Empty(t, env.tracker.Markers())
	_ = f
}

func TestPauseKeepsSessionOnBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.backend.pauseErr = errors.New("backend down")
	startTracking(t, env)

	env.tracker.StopTracking(context.Background(), true)

	// The backend pause failed, so the flight stays assigned in Resuming
	// and the session can be retried.
	assert.Equal(t, model.StatusResuming, env.tracker.Status())
	assert.NotNil(t, env.tracker.Flight())

	r := env.tracker.Resume()
	require.NotNil(t, r)
	assert.InDelta(t, 47.4647, r.Lat, 0.001)
}

func TestFinishUpFlightTracking(t *testing.T) {
	env := newTestEnv(t)
	f := startTracking(t, env)

	require.NoError(t, env.tracker.FinishUpFlightTracking(context.Background()))

	assert.Equal(t, model.StatusNotTracking, env.tracker.Status())
	assert.Nil(t, env.tracker.Flight())

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	require.Len(t, env.backend.completed, 1)
	final := env.backend.completed[0]
	assert.Equal(t, f.ID, final.FinalPositionReport.FlightID)
	assert.NotEmpty(t, final.FlightLog)
}

func TestFinishUpFailureKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.backend.completeErr = errors.New("backend down")
	startTracking(t, env)

	err := env.tracker.FinishUpFlightTracking(context.Background())
	require.Error(t, err)

	// Session survives for a later retry.
	assert.Equal(t, model.StatusTracking, env.tracker.Status())
	assert.NotNil(t, env.tracker.Flight())
}
