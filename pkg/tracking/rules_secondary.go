package tracking

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

const (
	// fuelIncreaseLimit is the hard bound on an unexplained fuel gain
	// between two samples. Anything below it is condensation-level noise
	// some aircraft models produce.
	fuelIncreaseLimit = 0.5 // gallons

	// Beacon switch observations within the dead-band are treated as
	// switch bounce, not real state changes.
	beaconDeadBand = 5 * time.Second

	// Landing light altitude rule per engine class.
	landingLightAltJet    = 9000.0 // ft indicated, jets and turboprops
	landingLightAltPiston = 300.0  // ft AGL, everything else

	// Sim clock jumps beyond the tolerance produce an informational event,
	// debounced.
	simTimeJumpTolerance = 60 * time.Second
	simTimeJumpDebounce  = 10 * time.Second

	// dateTimeConditionTolerance for the advisory sim-clock condition.
	dateTimeConditionTolerance = 5 * time.Minute
)

func (t *Tracker) processSecondary(p sim.Pair[sim.SecondaryTelemetry]) {
	cur := p.New

	t.latestMu.Lock()
	t.latestSecondary = cur
	t.latestMu.Unlock()

	t.mu.RLock()
	status := t.status
	flight := t.flight
	groundHandlingComplete := t.groundHandlingComplete
	t.mu.RUnlock()

	if flight != nil {
		t.updateSecondaryConditions(cur, flight)
	}

	active := status == model.StatusGroundOperations || status == model.StatusTracking
	if !active {
		return
	}

	if t.checkUnlimitedFuel(p) {
		return
	}
	if t.checkFuelIncrease(p, status) {
		return
	}
	if flight != nil && t.checkPayloadChange(p, flight, status) {
		return
	}
	if t.checkGroundHandling(p, groundHandlingComplete) {
		return
	}

	t.rulesMu.Lock()
	t.checkEngines(p)
	t.checkSimTimeJump(p)
	t.checkLights(p, status, flight)
	t.rulesMu.Unlock()
}

// updateSecondaryConditions refreshes the telemetry-driven pre-flight
// conditions: fuel, payload and the sim clock.
func (t *Tracker) updateSecondaryConditions(cur *sim.SecondaryTelemetry, flight *model.Flight) {
	fuelTol := math.Max(1.0, flight.FuelGallons*0.02)
	t.conditions.Update(ConditionFuel,
		fmt.Sprintf("%.1f gal", cur.FuelGallons),
		math.Abs(cur.FuelGallons-flight.FuelGallons) <= fuelTol)

	t.conditions.Update(ConditionPayload,
		fmt.Sprintf("%.0f lbs", cur.PayloadPounds),
		math.Abs(cur.PayloadPounds-flight.PayloadPounds) <= flight.PayloadDeltaAllowed)

	drift := time.Since(cur.TimeInSim)
	t.conditions.Update(ConditionDateTime,
		cur.TimeInSim.UTC().Format("2006-01-02 15:04"),
		drift.Abs() <= dateTimeConditionTolerance)
}

// checkUnlimitedFuel hard-aborts on any toggle of the sim's unlimited fuel
// option while tracking is active. No resume: fuel accounting is broken
// either way.
func (t *Tracker) checkUnlimitedFuel(p sim.Pair[sim.SecondaryTelemetry]) bool {
	if p.New.UnlimitedFuel == p.Old.UnlimitedFuel && !p.New.UnlimitedFuel {
		return false
	}
	lat, lon, alt := t.lastKnownPosition()
	t.abortTracking(model.AbortUnlimitedFuel, false, lat, lon, alt,
		"Unlimited fuel detected, aborting flight tracking")
	return true
}

// checkFuelIncrease hard-aborts when fuel on board grows by more than half a
// gallon between two samples while tracking. Smaller gains are logged and
// ignored.
func (t *Tracker) checkFuelIncrease(p sim.Pair[sim.SecondaryTelemetry], status model.TrackingStatus) bool {
	delta := p.New.FuelGallons - p.Old.FuelGallons
	if delta <= 0 {
		return false
	}
	if delta <= fuelIncreaseLimit || status != model.StatusTracking {
		slog.Debug("fuel on board increased", "delta_gal", delta)
		return false
	}
	lat, lon, alt := t.lastKnownPosition()
	t.abortTracking(model.AbortFuelIncrease, false, lat, lon, alt,
		fmt.Sprintf("Fuel on board increased by %.1f gallons, aborting flight tracking", delta))
	return true
}

// checkPayloadChange aborts when the payload drifts outside the per-aircraft
// allowance between two samples. Only enforced once airborne tracking has
// begun: boarding and loading move payload around during ground operations.
// Resume is allowed: the user can restore the load and continue.
func (t *Tracker) checkPayloadChange(p sim.Pair[sim.SecondaryTelemetry], flight *model.Flight, status model.TrackingStatus) bool {
	if status != model.StatusTracking {
		return false
	}
	delta := math.Abs(p.New.PayloadPounds - p.Old.PayloadPounds)
	if delta <= flight.PayloadDeltaAllowed {
		return false
	}
	lat, lon, alt := t.lastKnownPosition()
	t.abortTracking(model.AbortPayloadChange, true, lat, lon, alt,
		fmt.Sprintf("Payload changed by %.0f lbs, aborting flight tracking", delta))
	return true
}

// checkGroundHandling aborts when engines start or pushback begins before
// ground handling has finished. Resume is allowed once handling completes.
func (t *Tracker) checkGroundHandling(p sim.Pair[sim.SecondaryTelemetry], complete bool) bool {
	if complete {
		return false
	}
	old, cur := p.Old, p.New

	if cur.EngineRunning && !old.EngineRunning {
		lat, lon, alt := t.lastKnownPosition()
		t.abortTracking(model.AbortGroundHandling, true, lat, lon, alt,
			"Engines started before ground handling completed, aborting flight tracking")
		return true
	}
	if cur.PushbackActive && !old.PushbackActive {
		lat, lon, alt := t.lastKnownPosition()
		t.abortTracking(model.AbortGroundHandling, true, lat, lon, alt,
			"Pushback started before ground handling completed, aborting flight tracking")
		return true
	}
	return false
}

// checkEngines logs engine start/stop transitions and triggers the deferred
// landing report once the engines are shut down after landing. Caller holds
// rulesMu.
func (t *Tracker) checkEngines(p sim.Pair[sim.SecondaryTelemetry]) {
	old, cur := p.Old, p.New

	if cur.EngineRunning && !old.EngineRunning {
		lat, lon, alt := t.lastKnownPosition()
		t.addEvent(lat, lon, alt, model.EventSystems, model.ColorInfo, "Engines started")
		return
	}

	if !cur.EngineRunning && old.EngineRunning {
		lat, lon, alt := t.lastKnownPosition()
		t.addEvent(lat, lon, alt, model.EventSystems, model.ColorInfo, "Engines stopped")

		t.mu.RLock()
		landed := t.wasAirborne
		t.mu.RUnlock()

		t.touchdownsMu.Lock()
		hasTouchdown := len(t.touchdowns) > 0
		t.touchdownsMu.Unlock()

		if landed && hasTouchdown && !t.rules.landingSummarySent {
			t.rules.landingSummarySent = true
			t.notifyLanding(model.ReportAfterEnginesOff, nil)
		}
	}
}

// checkSimTimeJump compares the sim clock's advance against the sample
// interval and reports jumps beyond a minute. Informational only: time can
// legitimately be changed mid-flight. Caller holds rulesMu.
func (t *Tracker) checkSimTimeJump(p sim.Pair[sim.SecondaryTelemetry]) {
	expected := t.source.SampleRate(sim.StreamSecondary)
	jump := p.New.TimeInSim.Sub(p.Old.TimeInSim) - expected
	if jump.Abs() <= simTimeJumpTolerance {
		return
	}

	now := time.Now()
	if now.Sub(t.rules.lastSimTimeEvent) < simTimeJumpDebounce {
		return
	}
	t.rules.lastSimTimeEvent = now

	lat, lon, alt := t.lastKnownPosition()
	t.addEvent(lat, lon, alt, model.EventSimTime, model.ColorInfo,
		fmt.Sprintf("Sim time changed by %s", jump.Round(time.Second)))
}

// checkLights logs light switch transitions (with a dead-band on the beacon,
// which bounces on some aircraft) and warns when landing lights are off
// below the altitude where they are required. Caller holds rulesMu.
func (t *Tracker) checkLights(p sim.Pair[sim.SecondaryTelemetry], status model.TrackingStatus, flight *model.Flight) {
	old, cur := p.Old, p.New
	lat, lon, alt := t.lastKnownPosition()

	if cur.BeaconLight != old.BeaconLight {
		now := time.Now()
		if t.rules.beaconChangedAt.IsZero() || now.Sub(t.rules.beaconChangedAt) >= beaconDeadBand {
			t.addEvent(lat, lon, alt, model.EventLights, model.ColorInfo,
				"Beacon light "+onOff(cur.BeaconLight))
		}
		// A bounce resets its own timer: rapid flapping stays silent.
		t.rules.beaconChangedAt = now
	}

	if cur.NavLight != old.NavLight {
		t.addEvent(lat, lon, alt, model.EventLights, model.ColorInfo, "Nav lights "+onOff(cur.NavLight))
	}
	if cur.StrobeLight != old.StrobeLight {
		t.addEvent(lat, lon, alt, model.EventLights, model.ColorInfo, "Strobe lights "+onOff(cur.StrobeLight))
	}
	if cur.TaxiLight != old.TaxiLight {
		t.addEvent(lat, lon, alt, model.EventLights, model.ColorInfo, "Taxi lights "+onOff(cur.TaxiLight))
	}
	if cur.LandingLight != old.LandingLight {
		t.addEvent(lat, lon, alt, model.EventLights, model.ColorInfo, "Landing lights "+onOff(cur.LandingLight))
	}

	if status != model.StatusTracking || flight == nil {
		return
	}

	prim, _ := t.latestSnapshots()
	if prim == nil || prim.OnGround {
		t.rules.lightWarningActive = false
		return
	}

	var required bool
	switch flight.EngineClass {
	case model.EngineJet, model.EngineTurboprop:
		required = prim.IndicatedAltitude < landingLightAltJet
	default:
		required = prim.RadioHeight < landingLightAltPiston
	}

	if required && !cur.LandingLight {
		if !t.rules.lightWarningActive {
			t.rules.lightWarningActive = true
			t.addEvent(lat, lon, alt, model.EventLights, model.ColorWarning,
				"Landing lights should be on at this altitude")
		}
	} else {
		t.rules.lightWarningActive = false
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// lastKnownPosition returns the latest primary fix for event placement.
func (t *Tracker) lastKnownPosition() (lat, lon, alt float64) {
	prim, _ := t.latestSnapshots()
	if prim == nil {
		return 0, 0, 0
	}
	return prim.Lat, prim.Lon, prim.AltitudeMSL
}
