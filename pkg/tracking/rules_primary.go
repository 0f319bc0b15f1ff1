package tracking

import (
	"fmt"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/geo"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

const (
	// warningDebounce suppresses repeat overspeed/stall events.
	warningDebounce = 10 * time.Second

	// speedLimitKnots/speedLimitAltitude is the low-altitude speed rule:
	// indicated airspeed above the limit below the (indicated) altitude is a
	// violation.
	speedLimitKnots    = 260.0
	speedLimitAltitude = 9500.0

	// teleportSpeedKnots is the ground speed above which a position jump
	// between two samples cannot be genuine movement.
	teleportSpeedKnots = 600.0

	// Landing sampling boost window.
	landingBoostHeight   = 500.0  // ft AGL, arm below this on approach
	landingBoostCeiling  = 1500.0 // ft AGL, disarm when climbing through
	landingBoostTaxiKnot = 40.0   // kt, disarm once slowed on the runway

	// locationConditionRadius is how far from the origin airport the
	// aircraft may sit and still satisfy the location condition.
	locationConditionRadius = 10000.0 // meters
)

func (t *Tracker) processPrimary(p sim.Pair[sim.PrimaryTelemetry]) {
	cur := p.New

	t.latestMu.Lock()
	t.latestPrimary = cur
	t.latestMu.Unlock()

	t.notifyLocation(cur.Lat, cur.Lon, cur.AltitudeMSL)

	status := t.Status()
	active := status == model.StatusGroundOperations || status == model.StatusTracking

	if status == model.StatusPreparing || status == model.StatusGroundOperations {
		t.updateLocationCondition(cur)
	}

	if active {
		if t.checkSlew(p) || t.checkTeleport(p) || t.checkCrash(p) {
			return
		}
	}

	if status == model.StatusTracking {
		if !cur.OnGround {
			t.mu.Lock()
			t.wasAirborne = true
			t.mu.Unlock()
		}

		t.rulesMu.Lock()
		t.checkOverspeedStall(p)
		t.checkSpeedLimit(p)
		t.adjustLandingSampling(p)
		t.rulesMu.Unlock()

		t.accumulateTime(p)
	}

	t.addPositionReport(cur)
}

// updateLocationCondition refreshes the pre-flight location check against
// the origin airport.
func (t *Tracker) updateLocationCondition(cur *sim.PrimaryTelemetry) {
	t.mu.RLock()
	flight := t.flight
	t.mu.RUnlock()
	if flight == nil {
		return
	}

	d := geo.Distance(
		geo.Point{Lat: flight.Origin.Lat, Lon: flight.Origin.Lon},
		geo.Point{Lat: cur.Lat, Lon: cur.Lon},
	)
	t.conditions.Update(ConditionLocation,
		fmt.Sprintf("%.1f km from %s", d/1000.0, flight.Origin.ICAO),
		d <= locationConditionRadius)
}

// checkSlew aborts tracking the moment slew mode is observed. Slewing is
// indistinguishable from teleporting the aircraft, but the flight can be
// resumed later from the last save.
func (t *Tracker) checkSlew(p sim.Pair[sim.PrimaryTelemetry]) bool {
	if !p.New.SlewActive {
		return false
	}
	t.abortTracking(model.AbortSlew, true, p.New.Lat, p.New.Lon, p.New.AltitudeMSL,
		"Slew mode detected, aborting flight tracking")
	return true
}

// checkTeleport compares the distance covered between two consecutive
// samples against the furthest a 600 kt aircraft could travel in one sample
// interval at the current sim rate.
func (t *Tracker) checkTeleport(p sim.Pair[sim.PrimaryTelemetry]) bool {
	old, cur := p.Old, p.New

	interval := t.source.SampleRate(sim.StreamPrimary).Seconds()
	simRate := cur.SimRate
	if simRate < 1 {
		simRate = 1
	}
	maxDist := teleportSpeedKnots * geo.KnotsToMetersPerSecond * simRate * interval

	dist := geo.Distance(
		geo.Point{Lat: old.Lat, Lon: old.Lon},
		geo.Point{Lat: cur.Lat, Lon: cur.Lon},
	)
	if dist <= maxDist {
		return false
	}

	t.abortTracking(model.AbortTeleport, true, cur.Lat, cur.Lon, cur.AltitudeMSL,
		fmt.Sprintf("Teleport detected (%.0f m in one sample), aborting flight tracking", dist))
	return true
}

func (t *Tracker) checkCrash(p sim.Pair[sim.PrimaryTelemetry]) bool {
	if !p.New.Crashed {
		return false
	}
	t.abortTracking(model.AbortCrash, false, p.New.Lat, p.New.Lon, p.New.AltitudeMSL,
		"Aircraft crashed, aborting flight tracking")
	return true
}

// checkOverspeedStall logs warning transitions from the sim's own overspeed
// and stall annunciators, debounced so a flapping warning produces one event
// per ten seconds at most. Caller holds rulesMu.
func (t *Tracker) checkOverspeedStall(p sim.Pair[sim.PrimaryTelemetry]) {
	old, cur := p.Old, p.New
	now := time.Now()

	if cur.OverspeedWarning && !old.OverspeedWarning &&
		now.Sub(t.rules.lastOverspeedEvent) >= warningDebounce {
		t.rules.lastOverspeedEvent = now
		t.addEvent(cur.Lat, cur.Lon, cur.AltitudeMSL, model.EventSpeed, model.ColorViolation,
			"Overspeed warning")
	}

	if cur.StallWarning && !old.StallWarning &&
		now.Sub(t.rules.lastStallEvent) >= warningDebounce {
		t.rules.lastStallEvent = now
		t.addEvent(cur.Lat, cur.Lon, cur.AltitudeMSL, model.EventSpeed, model.ColorViolation,
			"Stall warning")
	}
}

// checkSpeedLimit flags exceeding 260 kt indicated below 9,500 ft. Edge
// triggered: one event per excursion. Caller holds rulesMu.
func (t *Tracker) checkSpeedLimit(p sim.Pair[sim.PrimaryTelemetry]) {
	cur := p.New

	exceeding := !cur.OnGround &&
		cur.IndicatedAltitude < speedLimitAltitude &&
		cur.AirspeedIndicated > speedLimitKnots

	if exceeding && !t.rules.speedLimitActive {
		t.rules.speedLimitActive = true
		t.addEvent(cur.Lat, cur.Lon, cur.AltitudeMSL, model.EventSpeed, model.ColorViolation,
			"Exceeded 260 knots below 10,000 feet")
	} else if !exceeding {
		t.rules.speedLimitActive = false
	}
}

// adjustLandingSampling boosts the landing stream to 25 ms on short final
// (below 500 ft AGL after having been airborne) and restores the default
// once the aircraft has either slowed on the runway or climbed away. Caller
// holds rulesMu.
func (t *Tracker) adjustLandingSampling(p sim.Pair[sim.PrimaryTelemetry]) {
	cur := p.New

	t.mu.RLock()
	wasAirborne := t.wasAirborne
	t.mu.RUnlock()

	if !t.rules.landingBoosted {
		if wasAirborne && !cur.OnGround && cur.RadioHeight < landingBoostHeight {
			t.rules.landingBoosted = true
			t.source.SetSampleRate(sim.StreamLanding, sim.LandingBoostInterval)
		}
		return
	}

	done := (cur.OnGround && cur.GroundSpeed < landingBoostTaxiKnot) ||
		cur.RadioHeight > landingBoostCeiling
	if done {
		t.rules.landingBoosted = false
		t.source.SetSampleRate(sim.StreamLanding, sim.DefaultSampleInterval)
	}
}

// accumulateTime advances the warp and online-network counters by one sample
// interval's worth of wall time.
func (t *Tracker) accumulateTime(p sim.Pair[sim.PrimaryTelemetry]) {
	interval := t.source.SampleRate(sim.StreamPrimary)

	t.mu.Lock()
	defer t.mu.Unlock()
	if p.New.SimRate > 1 {
		saved := time.Duration(float64(interval) * (p.New.SimRate - 1))
		t.warpSaved += saved
	}
	if t.vatsimOnline && t.flight != nil && t.flight.OnlineNetwork == "vatsim" {
		t.onlineDuration += interval
	}
}
