package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

func pairL(old, cur *sim.LandingTelemetry) sim.Pair[sim.LandingTelemetry] {
	return sim.Pair[sim.LandingTelemetry]{Old: old, New: cur}
}

func TestTouchdownDetection(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	air := &sim.LandingTelemetry{Lat: 46.24, Lon: 6.11, Alt: 1420, VerticalSpeed: -320, GForce: 1.1}
	ground := &sim.LandingTelemetry{Lat: 46.2381, Lon: 6.109, Alt: 1411, OnGround: true, VerticalSpeed: -280, GForce: 1.42, SideSlip: 1.5, HeadWind: 8, CrossWind: 3, Bank: 0.8, GroundSpeed: 58, AirspeedTrue: 61}

	// Must have been airborne first, otherwise taxiing noise would count.
	env.tracker.processLanding(pairL(air, air))
	env.tracker.processLanding(pairL(air, ground))

	tds := env.tracker.TouchDowns()
	require.Len(t, tds, 1)
	td := tds[0]
	assert.InDelta(t, 280.0, td.LandingRate, 0.001, "landing rate is the inverted vertical speed")
	assert.InDelta(t, 1.42, td.GForce, 0.001, "the worse side of the transition wins")
	assert.InDelta(t, 3.0, td.CrossWind, 0.001)

	timings := env.notifier.landingTimings()
	require.Len(t, timings, 1)
	assert.Equal(t, model.ReportImmediate, timings[0])
}

func TestNoTouchdownWithoutAirborne(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	ground := &sim.LandingTelemetry{OnGround: true}
	env.tracker.processLanding(pairL(ground, ground))

	assert.Empty(t, env.tracker.TouchDowns())
}

func TestBounceProducesSecondTouchdownSilently(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	air := &sim.LandingTelemetry{VerticalSpeed: -400, GForce: 1.2}
	ground := &sim.LandingTelemetry{OnGround: true, VerticalSpeed: -350, GForce: 1.6}

	env.tracker.processLanding(pairL(air, air))
	env.tracker.processLanding(pairL(air, ground))
	env.tracker.processLanding(pairL(ground, air)) // bounce
	env.tracker.processLanding(pairL(air, ground))

	assert.Len(t, env.tracker.TouchDowns(), 2)

	// Only the first touchdown surfaces; the bounce is recorded silently.
	require.Len(t, env.notifier.landingTimings(), 1)
	var touchdownEvents int
	for _, e := range env.tracker.Events() {
		if e.Type == model.EventTouchdown {
			touchdownEvents++
		}
	}
	assert.Equal(t, 1, touchdownEvents)
}

func TestEnginesOffTriggersLandingSummary(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	// Land first.
	air := &sim.LandingTelemetry{VerticalSpeed: -200, GForce: 1.2}
	ground := &sim.LandingTelemetry{OnGround: true, VerticalSpeed: -180, GForce: 1.3}
	env.tracker.processLanding(pairL(air, air))
	env.tracker.processLanding(pairL(air, ground))

	// Mark the session as having been airborne.
	airborne := primaryAt(46.24, 6.11)
	airborne.OnGround = false
	env.tracker.processPrimary(pairP(airborne, airborne))

	running := &sim.SecondaryTelemetry{EngineRunning: true, FuelGallons: 30, PayloadPounds: 350}
	stopped := &sim.SecondaryTelemetry{EngineRunning: false, FuelGallons: 30, PayloadPounds: 350}
	env.tracker.processSecondary(pairS(running, stopped))

	timings := env.notifier.landingTimings()
	require.Len(t, timings, 2)
	assert.Equal(t, model.ReportImmediate, timings[0])
	assert.Equal(t, model.ReportAfterEnginesOff, timings[1])

	// Only once per flight.
	env.tracker.processSecondary(pairS(running, stopped))
	assert.Len(t, env.notifier.landingTimings(), 2)
}

func TestLandingSamplingBoost(t *testing.T) {
	env := newTestEnv(t)
	startTracking(t, env)

	// Get airborne, then descend through 500 ft AGL.
	cruise := &sim.PrimaryTelemetry{Lat: 47, Lon: 8, RadioHeight: 3000, SimRate: 1}
	env.tracker.processPrimary(pairP(cruise, cruise))
	assert.Equal(t, sim.DefaultSampleInterval, env.source.SampleRate(sim.StreamLanding))

	final := &sim.PrimaryTelemetry{Lat: 47, Lon: 8, RadioHeight: 400, SimRate: 1}
	env.tracker.processPrimary(pairP(cruise, final))
	assert.Equal(t, sim.LandingBoostInterval, env.source.SampleRate(sim.StreamLanding))

	// Slowing down on the runway restores the default rate.
	rollout := &sim.PrimaryTelemetry{Lat: 47, Lon: 8, OnGround: true, GroundSpeed: 30, SimRate: 1}
	env.tracker.processPrimary(pairP(final, rollout))
	assert.Equal(t, sim.DefaultSampleInterval, env.source.SampleRate(sim.StreamLanding))
}
