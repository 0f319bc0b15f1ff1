package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// SetFlight assigns (or clears, with nil) the active flight. Assignment is
// rejected while a tracking session is in progress. A flight with Resume set
// reconciles local and cloud saves and restores the session before the user
// can continue it.
func (t *Tracker) SetFlight(ctx context.Context, f *model.Flight) error {
	t.mu.Lock()
	if f != nil && t.status != model.StatusNotTracking {
		t.mu.Unlock()
		return ErrTrackingActive
	}

	if f == nil {
		t.flight = nil
		t.status = model.StatusNotTracking
		t.mu.Unlock()

		t.clearSession()
		t.conditions.Reset()
		t.applySampleRates(model.StatusNotTracking)
		t.notifyFlight(nil)
		t.notifyStatus(model.StatusNotTracking)
		return nil
	}

	t.flight = f
	status := model.StatusPreparing
	if f.Resume {
		status = model.StatusResuming
	}
	t.status = status
	t.mu.Unlock()

	t.clearSession()
	t.conditions.Reset()
	t.seedConditions(f)

	if f.Resume {
		if err := t.prepareResume(ctx, f); err != nil {
			t.mu.Lock()
			t.flight = nil
			t.status = model.StatusNotTracking
			t.mu.Unlock()
			t.clearSession()
			return fmt.Errorf("failed to prepare flight resume: %w", err)
		}
	} else {
		t.addAirportMarkers(f)
		t.addNavLogMarkers(f.NavLog)
	}

	t.applySampleRates(status)
	t.notifyFlight(f)
	t.notifyStatus(status)
	slog.Info("flight assigned", "flight", f.ID, "resume", f.Resume,
		"origin", f.Origin.ICAO, "destination", f.Destination.ICAO)
	return nil
}

func (t *Tracker) seedConditions(f *model.Flight) {
	t.conditions.SetExpected(ConditionFuel, fmt.Sprintf("%.1f gal", f.FuelGallons))
	t.conditions.SetExpected(ConditionPayload, fmt.Sprintf("%.0f lbs", f.PayloadPounds))
	t.conditions.SetExpected(ConditionPlaneModel, f.AircraftType)
	t.conditions.SetExpected(ConditionLocation, f.Origin.ICAO)
	if f.OnlineNetwork == "vatsim" {
		t.conditions.SetExpected(ConditionVatsim, "connected")
	} else {
		t.conditions.SetEnabled(ConditionVatsim, false)
	}
	if f.Resume {
		// The aircraft resumes mid-route; matching the origin airport and
		// planned fuel makes no sense anymore.
		t.conditions.SetEnabled(ConditionLocation, false)
		t.conditions.SetEnabled(ConditionFuel, false)
		t.conditions.SetEnabled(ConditionPayload, false)
	}
}

// StartTracking begins (or resumes) the tracking session. Before ground
// handling has completed the session enters ground operations, which
// requires cold engines; afterwards it enters full tracking.
func (t *Tracker) StartTracking(ctx context.Context) error {
	t.mu.Lock()

	if t.flight == nil {
		t.mu.Unlock()
		return ErrNoFlight
	}
	switch t.status {
	case model.StatusPreparing, model.StatusResuming, model.StatusGroundOperations:
	default:
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidStatus, t.status)
	}
	if !t.conditions.AllSatisfied() {
		t.mu.Unlock()
		return ErrConditionsNotMet
	}

	wasResuming := t.status == model.StatusResuming
	firstStart := t.trackingStarted.IsZero()

	if t.groundHandlingComplete || wasResuming {
		if firstStart {
			t.trackingStarted = time.Now().UTC()
		}
		if !t.pausedAt.IsZero() {
			t.pausedTotal += time.Since(t.pausedAt)
			t.pausedAt = time.Time{}
		}
		t.trackingStopped = time.Time{}
		// A resumed flight finished its ground handling before departure.
		t.groundHandlingComplete = true
		t.status = model.StatusTracking
		pending := t.pendingFinalize
		t.mu.Unlock()

		t.applySampleRates(model.StatusTracking)
		if firstStart {
			t.AddTrackingEvent(model.EventTracking, model.ColorOK, "Flight tracking started")
		} else if wasResuming {
			t.AddTrackingEvent(model.EventTracking, model.ColorOK, "Flight tracking resumed")
		}
		t.notifyStatus(model.StatusTracking)

		if pending {
			// The previous finalize attempt failed mid-flight-completion;
			// retry now that the session is back.
			go func() {
				if err := t.FinishUpFlightTracking(ctx); err != nil {
					slog.Error("deferred flight completion failed", "error", err)
				}
			}()
		}
		return nil
	}

	if t.status == model.StatusGroundOperations {
		t.mu.Unlock()
		return ErrGroundHandlingIncomplete
	}

	_, sec := t.latestSnapshots()
	if sec != nil && sec.EngineRunning {
		t.mu.Unlock()
		return ErrEnginesRunning
	}

	if firstStart {
		t.trackingStarted = time.Now().UTC()
	}
	t.status = model.StatusGroundOperations
	t.mu.Unlock()

	t.applySampleRates(model.StatusGroundOperations)
	t.AddTrackingEvent(model.EventTracking, model.ColorOK, "Flight tracking started")
	t.notifyStatus(model.StatusGroundOperations)
	return nil
}

// SetGroundHandlingComplete marks boarding/fueling as finished (or not) and
// adjusts how eagerly fuel and payload are sampled.
func (t *Tracker) SetGroundHandlingComplete(complete bool) {
	t.mu.Lock()
	changed := t.groundHandlingComplete != complete
	t.groundHandlingComplete = complete
	status := t.status
	t.mu.Unlock()

	if !changed {
		return
	}

	if complete {
		t.AddTrackingEvent(model.EventSystems, model.ColorOK, "Ground handling completed")
		t.applySampleRates(status)
	} else if status == model.StatusPreparing || status == model.StatusGroundOperations {
		t.source.SetSampleRate(sim.StreamSecondary, sim.FastSampleInterval)
	}
}

// StopTracking ends the session. With resumeLater the session state is
// saved, uploaded and the flight paused server-side so it can be continued;
// without it the flight is aborted and all session state discarded.
func (t *Tracker) StopTracking(ctx context.Context, resumeLater bool) {
	status := t.Status()
	if status == model.StatusNotTracking {
		return
	}

	if resumeLater {
		if status == model.StatusResuming {
			// Already paused; the save and the server-side pause stand.
			return
		}
		t.pauseForResume(ctx)
		return
	}
	t.stopAndDiscard(ctx)
}

// abortTracking is the rule engine's funnel for ending a session: log the
// violation, tell the listeners, then stop.
func (t *Tracker) abortTracking(reason model.AbortReason, allowResume bool, lat, lon, alt float64, message string) {
	t.addEvent(lat, lon, alt, model.EventViolation, model.ColorViolation, message)
	slog.Warn("aborting flight tracking", "reason", string(reason), "resume_allowed", allowResume)
	t.notifyAborted(reason, allowResume, message)

	if allowResume {
		t.pauseForResume(context.Background())
	} else {
		t.stopAndDiscard(context.Background())
	}
}

// stopAndDiscard drops the session and the flight. The backend abort is
// fire-and-forget: the server reconciles missed aborts on its own.
func (t *Tracker) stopAndDiscard(ctx context.Context) {
	t.mu.Lock()
	flight := t.flight
	t.flight = nil
	t.status = model.StatusNotTracking
	t.mu.Unlock()

	t.clearSession()
	t.conditions.Reset()
	t.applySampleRates(model.StatusNotTracking)

	if flight != nil {
		t.deleteSave(ctx, flight.ID)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := t.backend.AbortFlight(ctx, flight.ID); err != nil {
				slog.Error("failed to report flight abort", "flight", flight.ID, "error", err)
			}
		}()
	}

	t.notifyFlight(nil)
	t.notifyStatus(model.StatusNotTracking)
}

// pauseForResume saves the session, stages the resume state and asks the
// backend to pause the flight. The save file stays on disk either way; if
// the backend call fails the session stays in Resuming so the user can
// retry.
func (t *Tracker) pauseForResume(ctx context.Context) {
	t.AddTrackingEvent(model.EventTracking, model.ColorInfo, "Flight tracking paused")

	t.mu.Lock()
	flight := t.flight
	t.status = model.StatusResuming
	now := time.Now().UTC()
	t.trackingStopped = now
	t.pausedAt = now
	t.mu.Unlock()

	if flight == nil {
		return
	}

	t.applySampleRates(model.StatusResuming)
	t.notifyStatus(model.StatusResuming)

	t.stageResumeFromTelemetry()

	// Fresh fuel and payload numbers before the save.
	t.source.RequestRefresh(sim.StreamSecondary)
	time.Sleep(t.cfg.Tracking.SettleDelay.Std())

	if err := t.saveFlightLog(ctx); err != nil {
		slog.Error("failed to save flight log for pause", "error", err)
	} else {
		t.uploadAutoSave(ctx, flight.ID)
	}
	t.uploadPositionReport(ctx)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := t.backend.PauseFlight(ctx, flight.ID); err != nil {
			slog.Error("failed to pause flight on the backend", "flight", flight.ID, "error", err)
			return
		}
		t.mu.Lock()
		t.flight = nil
		t.status = model.StatusNotTracking
		t.mu.Unlock()
		t.conditions.Reset()
		t.applySampleRates(model.StatusNotTracking)
		t.notifyFlight(nil)
		t.notifyStatus(model.StatusNotTracking)
	}()
}

// stageResumeFromTelemetry captures the aircraft state the user will need to
// restore when continuing the flight.
func (t *Tracker) stageResumeFromTelemetry() {
	prim, sec := t.latestSnapshots()
	if prim == nil {
		return
	}

	r := &ResumeState{
		Lat:     prim.Lat,
		Lon:     prim.Lon,
		Alt:     prim.AltitudeMSL,
		Heading: prim.Heading,
		SavedAt: time.Now().UTC(),
	}
	if sec != nil {
		r.FuelGallons = sec.FuelGallons
		r.PayloadPounds = sec.PayloadPounds
	}

	t.resumeMu.Lock()
	t.resume = r
	t.resumeMu.Unlock()
}

// FinishUpFlightTracking completes the flight: a final telemetry refresh,
// the full flight log and the last position report go to the backend in one
// call. On failure the session survives with a pending-finalize mark so a
// later resume can retry the upload.
func (t *Tracker) FinishUpFlightTracking(ctx context.Context) error {
	t.mu.RLock()
	flight := t.flight
	status := t.status
	t.mu.RUnlock()

	if flight == nil {
		return ErrNoFlight
	}
	if status != model.StatusTracking {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	t.source.RequestRefresh(sim.StreamSecondary)
	time.Sleep(t.cfg.Tracking.SettleDelay.Std())

	t.mu.Lock()
	t.trackingStopped = time.Now().UTC()
	t.mu.Unlock()

	if err := t.acquireSave(); err != nil {
		return err
	}
	defer t.releaseSave()

	encoded, err := t.encodeFlightLog()
	if err != nil {
		return fmt.Errorf("failed to encode flight log: %w", err)
	}

	report, ok := t.buildPositionReport()
	if !ok {
		return fmt.Errorf("no telemetry available for the final report")
	}

	final := backend.FinalReport{FinalPositionReport: report, FlightLog: encoded}
	if err := t.backend.CompleteFlight(ctx, final); err != nil {
		t.mu.Lock()
		t.pendingFinalize = true
		t.mu.Unlock()
		if saveErr := t.writeFlightLogLocked(ctx); saveErr != nil {
			slog.Error("failed to save flight log after finalize failure", "error", saveErr)
		}
		return fmt.Errorf("failed to complete flight: %w", err)
	}

	t.addEvent(report.Lat, report.Lon, report.Alt, model.EventTracking, model.ColorOK,
		"Flight completed")
	slog.Info("flight completed", "flight", flight.ID)

	t.mu.Lock()
	t.flight = nil
	t.status = model.StatusNotTracking
	t.mu.Unlock()

	t.deleteSave(ctx, flight.ID)
	t.clearSession()
	t.conditions.Reset()
	t.applySampleRates(model.StatusNotTracking)
	t.notifyFlight(nil)
	t.notifyStatus(model.StatusNotTracking)
	return nil
}
