package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// upkeepInterval is how often the periodic jobs are considered. The jobs
// themselves run at their configured cadences.
const upkeepInterval = 5 * time.Second

// runUpkeep drives the periodic session jobs: local auto-save, backend
// position reports and cloud auto-save uploads. Each job is single-flight; a
// slow run is skipped, not stacked.
func (t *Tracker) runUpkeep(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(upkeepInterval)
	defer ticker.Stop()

	for !t.closing.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.upkeepTick(ctx)
		}
	}
}

func (t *Tracker) upkeepTick(ctx context.Context) {
	status := t.Status()
	if status != model.StatusGroundOperations && status != model.StatusTracking {
		return
	}

	now := time.Now()

	t.timesMu.Lock()
	autoSaveDue := now.Sub(t.lastAutoSave) > t.cfg.Tracking.AutoSaveInterval.Std()
	positionDue := now.Sub(t.lastPositionUpload) > t.cfg.Tracking.PositionReportInterval.Std()
	cloudDue := now.Sub(t.lastCloudUpload) > t.cfg.Tracking.CloudUploadInterval.Std()
	t.timesMu.Unlock()

	if autoSaveDue && t.autoSaveGuard.CompareAndSwap(false, true) {
		go func() {
			defer t.autoSaveGuard.Store(false)
			defer recoverJob("auto-save")
			t.runAutoSave(ctx)
		}()
	}

	if status == model.StatusTracking && positionDue && t.posReportGuard.CompareAndSwap(false, true) {
		go func() {
			defer t.posReportGuard.Store(false)
			defer recoverJob("position-report")
			t.uploadPositionReport(ctx)
		}()
	}

	if cloudDue && t.cloudGuard.CompareAndSwap(false, true) {
		go func() {
			defer t.cloudGuard.Store(false)
			defer recoverJob("cloud-upload")
			t.runCloudUpload(ctx)
		}()
	}
}

func recoverJob(name string) {
	if r := recover(); r != nil {
		slog.Error("periodic job panic", "job", name, "panic", r)
	}
}

// runAutoSave refreshes fuel/payload telemetry and writes the flight log.
func (t *Tracker) runAutoSave(ctx context.Context) {
	t.source.RequestRefresh(sim.StreamSecondary)
	time.Sleep(t.cfg.Tracking.SettleDelay.Std())

	if err := t.saveFlightLog(ctx); err != nil {
		slog.Error("auto-save failed", "error", err)
		return
	}
	t.timesMu.Lock()
	t.lastAutoSave = time.Now()
	t.timesMu.Unlock()
}

// buildPositionReport assembles the periodic report from the latest
// snapshots.
func (t *Tracker) buildPositionReport() (backend.PositionReport, bool) {
	t.mu.RLock()
	flight := t.flight
	warp := t.warpSaved
	online := t.onlineDuration
	t.mu.RUnlock()

	prim, sec := t.latestSnapshots()
	if flight == nil || prim == nil {
		return backend.PositionReport{}, false
	}

	r := backend.PositionReport{
		FlightID:         flight.ID,
		Time:             time.Now().UTC(),
		Lat:              prim.Lat,
		Lon:              prim.Lon,
		Alt:              prim.AltitudeMSL,
		Heading:          prim.Heading,
		Pitch:            prim.Pitch,
		Bank:             prim.Bank,
		GroundSpeed:      prim.GroundSpeed,
		Airspeed:         prim.AirspeedIndicated,
		VerticalSpeed:    prim.VerticalSpeed,
		OnGround:         prim.OnGround,
		RadioHeight:      prim.RadioHeight,
		SimRate:          prim.SimRate,
		WarpSavedSec:     warp.Seconds(),
		OnlineNetworkSec: online.Seconds(),
	}
	if sec != nil {
		r.FuelGallons = sec.FuelGallons
	}
	return r, true
}

func (t *Tracker) uploadPositionReport(ctx context.Context) {
	report, ok := t.buildPositionReport()
	if !ok {
		return
	}

	if err := t.backend.PositionReport(ctx, report); err != nil {
		slog.Warn("position report upload failed", "error", err)
		return
	}
	t.timesMu.Lock()
	t.lastPositionUpload = time.Now()
	t.timesMu.Unlock()
}

// runCloudUpload pushes the newest save file to the backend so a pause or a
// crash on this machine can be resumed from another one.
func (t *Tracker) runCloudUpload(ctx context.Context) {
	t.mu.RLock()
	flight := t.flight
	t.mu.RUnlock()
	if flight == nil {
		return
	}

	if !t.uploadAutoSave(ctx, flight.ID) {
		// Retry well before the next full interval.
		t.timesMu.Lock()
		t.lastCloudUpload = time.Now().Add(-t.cfg.Tracking.CloudUploadInterval.Std() + time.Minute)
		t.timesMu.Unlock()
		return
	}
	t.timesMu.Lock()
	t.lastCloudUpload = time.Now()
	t.timesMu.Unlock()
}

// uploadAutoSave encodes the current session and ships it to the backend.
func (t *Tracker) uploadAutoSave(ctx context.Context, flightID uuid.UUID) bool {
	if err := t.acquireSave(); err != nil {
		slog.Warn("cloud upload skipped", "error", err)
		return false
	}
	encoded, err := t.encodeFlightLog()
	t.releaseSave()
	if err != nil {
		slog.Error("failed to encode flight log for upload", "error", err)
		return false
	}

	if err := t.backend.UploadFlightAutoSave(ctx, flightID, encoded); err != nil {
		slog.Warn("cloud auto-save upload failed", "flight", flightID, "error", err)
		return false
	}
	slog.Debug("cloud auto-save uploaded", "flight", flightID)
	return true
}
