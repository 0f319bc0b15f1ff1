// Package tracking implements the flight tracking core: the lifecycle state
// machine, the three telemetry processing loops, the rule engine, the event
// and marker log, the landing analyzer and the save/upload machinery.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensky-to/agent-sub001/pkg/backend"
	"github.com/opensky-to/agent-sub001/pkg/config"
	"github.com/opensky-to/agent-sub001/pkg/geo"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
	"github.com/opensky-to/agent-sub001/pkg/store"
)

// ResumeState is the staged aircraft state restored from a save file. It is
// surfaced to the user for confirmation and never pushed to the simulator
// automatically.
type ResumeState struct {
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	Alt           float64   `json:"alt"`
	Heading       float64   `json:"heading"`
	FuelGallons   float64   `json:"fuel_gallons"`
	PayloadPounds float64   `json:"payload_pounds"`
	SavedAt       time.Time `json:"saved_at"`
}

// ruleState is rule memory shared by the processing loops, guarded by
// Tracker.rulesMu.
type ruleState struct {
	lastOverspeedEvent time.Time
	lastStallEvent     time.Time
	speedLimitActive   bool
	lightWarningActive bool
	beaconChangedAt    time.Time
	lastSimTimeEvent   time.Time
	landingBoosted     bool
	airborne           bool // airborne observed on the landing stream
	landingSummarySent bool
}

// Tracker is the flight tracking core.
type Tracker struct {
	cfg     *config.Config
	source  sim.Source
	backend backend.Client
	st      store.Store

	agentID uuid.UUID

	closing atomic.Bool
	wg      sync.WaitGroup

	primaryQ   *pairQueue[sim.PrimaryTelemetry]
	secondaryQ *pairQueue[sim.SecondaryTelemetry]
	landingQ   *pairQueue[sim.LandingTelemetry]

	// mu guards the session scalars below.
	mu                     sync.RWMutex
	status                 model.TrackingStatus
	flight                 *model.Flight
	trackingStarted        time.Time
	trackingStopped        time.Time
	pausedAt               time.Time
	pausedTotal            time.Duration
	wasAirborne            bool
	groundHandlingComplete bool
	pendingFinalize        bool
	vatsimOnline           bool
	warpSaved              time.Duration
	onlineDuration         time.Duration

	conditions *Conditions

	// Latest raw snapshots for cross-stream rule checks. Readers tolerate a
	// snapshot slightly older than the pair being processed.
	latestMu        sync.RWMutex
	latestPrimary   *sim.PrimaryTelemetry
	latestSecondary *sim.SecondaryTelemetry

	logMu    sync.Mutex
	eventLog []model.EventLogEntry

	markersMu  sync.Mutex
	markers    []*model.EventMarker
	lastMarker *model.EventMarker // coalescing anchor, nil after clear

	trailMu      sync.Mutex
	trail        []model.TrailPoint
	lastTrailPos *geo.Point
	lastTrailHdg float64

	touchdownsMu sync.Mutex
	touchdowns   []model.TouchDown

	// rulesMu guards rule memory: each processing loop holds it for the
	// duration of one pair, and clearSession resets it between flights.
	rulesMu sync.Mutex
	rules   ruleState

	// saveSem serializes access to the save file across auto-save, cloud
	// upload, pause and finalize.
	saveSem chan struct{}

	autoSaveGuard  atomic.Bool
	posReportGuard atomic.Bool
	cloudGuard     atomic.Bool

	timesMu            sync.Mutex
	lastAutoSave       time.Time
	lastPositionUpload time.Time
	lastCloudUpload    time.Time

	resumeMu sync.Mutex
	resume   *ResumeState

	notifyMu  sync.RWMutex
	notifiers []Notifier
}

// New creates a tracker. The agent identity is loaded from (or created in)
// the store so that save files can be bound to this installation.
func New(cfg *config.Config, src sim.Source, be backend.Client, st store.Store) (*Tracker, error) {
	t := &Tracker{
		cfg:        cfg,
		source:     src,
		backend:    be,
		st:         st,
		status:     model.StatusNotTracking,
		conditions: NewConditions(),
		primaryQ:   newPairQueue[sim.PrimaryTelemetry](),
		secondaryQ: newPairQueue[sim.SecondaryTelemetry](),
		landingQ:   newPairQueue[sim.LandingTelemetry](),
		saveSem:    make(chan struct{}, 1),
	}

	id, err := t.loadAgentID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to establish agent identity: %w", err)
	}
	t.agentID = id

	return t, nil
}

func (t *Tracker) loadAgentID(ctx context.Context) (uuid.UUID, error) {
	if val, ok := t.st.GetState(ctx, "agent_id"); ok {
		if id, err := uuid.Parse(val); err == nil {
			return id, nil
		}
		slog.Warn("stored agent id is malformed, generating a new one", "value", val)
	}
	id := uuid.New()
	if err := t.st.SetState(ctx, "agent_id", id.String()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// AttachSource connects the simulator bridge. The bridge needs the tracker
// as its consumer, so construction is a two-step handshake: New with a nil
// source, then AttachSource before Start.
func (t *Tracker) AttachSource(src sim.Source) {
	t.source = src
}

// AgentID returns the persistent identity of this agent installation.
func (t *Tracker) AgentID() uuid.UUID {
	return t.agentID
}

// Start launches the processing loops and the upkeep ticker. Call once.
func (t *Tracker) Start(ctx context.Context) {
	t.applySampleRates(model.StatusNotTracking)

	t.wg.Add(4)
	go runLoop(ctx, t, "primary", t.primaryQ, t.processPrimary)
	go runLoop(ctx, t, "secondary", t.secondaryQ, t.processSecondary)
	go runLoop(ctx, t, "landing", t.landingQ, t.processLanding)
	go t.runUpkeep(ctx)
}

// Close stops the loops and waits for them to drain.
func (t *Tracker) Close() {
	t.closing.Store(true)
	t.wg.Wait()
}

// EnqueuePrimary implements sim.Consumer.
func (t *Tracker) EnqueuePrimary(p sim.Pair[sim.PrimaryTelemetry]) {
	t.primaryQ.Enqueue(p)
}

// EnqueueSecondary implements sim.Consumer.
func (t *Tracker) EnqueueSecondary(p sim.Pair[sim.SecondaryTelemetry]) {
	t.secondaryQ.Enqueue(p)
}

// EnqueueLanding implements sim.Consumer.
func (t *Tracker) EnqueueLanding(p sim.Pair[sim.LandingTelemetry]) {
	t.landingQ.Enqueue(p)
}

// Status returns the current lifecycle status.
func (t *Tracker) Status() model.TrackingStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Flight returns the assigned flight, or nil.
func (t *Tracker) Flight() *model.Flight {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.flight
}

// Conditions returns the pre-flight condition table.
func (t *Tracker) Conditions() *Conditions {
	return t.conditions
}

// CanStartTracking reports whether a flight is assigned and every blocking
// condition is satisfied.
func (t *Tracker) CanStartTracking() bool {
	t.mu.RLock()
	assigned := t.flight != nil
	t.mu.RUnlock()
	return assigned && t.conditions.AllSatisfied()
}

// Events returns a copy of the tracking event log.
func (t *Tracker) Events() []model.EventLogEntry {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	out := make([]model.EventLogEntry, len(t.eventLog))
	copy(out, t.eventLog)
	return out
}

// Markers returns a copy of the current map markers.
func (t *Tracker) Markers() []model.EventMarker {
	t.markersMu.Lock()
	defer t.markersMu.Unlock()
	out := make([]model.EventMarker, 0, len(t.markers))
	for _, m := range t.markers {
		out = append(out, *m)
	}
	return out
}

// Trail returns a copy of the recorded position trail.
func (t *Tracker) Trail() []model.TrailPoint {
	t.trailMu.Lock()
	defer t.trailMu.Unlock()
	out := make([]model.TrailPoint, len(t.trail))
	copy(out, t.trail)
	return out
}

// TouchDowns returns a copy of the recorded touchdowns, oldest first.
func (t *Tracker) TouchDowns() []model.TouchDown {
	t.touchdownsMu.Lock()
	defer t.touchdownsMu.Unlock()
	out := make([]model.TouchDown, len(t.touchdowns))
	copy(out, t.touchdowns)
	return out
}

// Resume returns the staged resume state, or nil if none is pending.
func (t *Tracker) Resume() *ResumeState {
	t.resumeMu.Lock()
	defer t.resumeMu.Unlock()
	if t.resume == nil {
		return nil
	}
	r := *t.resume
	return &r
}

// WarpSaved returns the accumulated time saved through sim-rate warp.
func (t *Tracker) WarpSaved() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.warpSaved
}

// UpdateVatsimStatus feeds the VATSIM condition from the datafeed watcher.
func (t *Tracker) UpdateVatsimStatus(online bool, callsign string) {
	t.mu.Lock()
	t.vatsimOnline = online
	t.mu.Unlock()

	current := "not connected"
	if online {
		current = "connected as " + callsign
	}
	t.conditions.Update(ConditionVatsim, current, online)
}

// SetConditionStatus feeds externally verified conditions (plane model and
// realism settings come from the dispatch layer, not from telemetry).
func (t *Tracker) SetConditionStatus(name ConditionName, current string, met bool) {
	t.conditions.Update(name, current, met)
}

func (t *Tracker) latestSnapshots() (*sim.PrimaryTelemetry, *sim.SecondaryTelemetry) {
	t.latestMu.RLock()
	defer t.latestMu.RUnlock()
	return t.latestPrimary, t.latestSecondary
}

// applySampleRates sets the per-stream polling intervals for a lifecycle
// status. The landing loop's short-final boost is handled separately.
func (t *Tracker) applySampleRates(status model.TrackingStatus) {
	switch status {
	case model.StatusNotTracking:
		t.source.SetSampleRate(sim.StreamPrimary, sim.IdleSampleInterval)
		t.source.SetSampleRate(sim.StreamSecondary, sim.IdleSampleInterval)
		t.source.SetSampleRate(sim.StreamLanding, sim.IdleSampleInterval)
	case model.StatusPreparing, model.StatusResuming:
		t.source.SetSampleRate(sim.StreamPrimary, sim.DefaultSampleInterval)
		t.source.SetSampleRate(sim.StreamSecondary, sim.FastSampleInterval)
		t.source.SetSampleRate(sim.StreamLanding, sim.IdleSampleInterval)
	case model.StatusGroundOperations:
		t.source.SetSampleRate(sim.StreamPrimary, sim.DefaultSampleInterval)
		t.source.SetSampleRate(sim.StreamSecondary, sim.FastSampleInterval)
		t.source.SetSampleRate(sim.StreamLanding, sim.DefaultSampleInterval)
	case model.StatusTracking:
		t.source.SetSampleRate(sim.StreamPrimary, sim.DefaultSampleInterval)
		t.source.SetSampleRate(sim.StreamSecondary, sim.IdleSampleInterval)
		t.source.SetSampleRate(sim.StreamLanding, sim.DefaultSampleInterval)
	}
}

// clearSession wipes all per-flight collections and rule memory.
func (t *Tracker) clearSession() {
	t.logMu.Lock()
	t.eventLog = nil
	t.logMu.Unlock()

	t.markersMu.Lock()
	t.markers = nil
	t.lastMarker = nil
	t.markersMu.Unlock()

	t.trailMu.Lock()
	t.trail = nil
	t.lastTrailPos = nil
	t.trailMu.Unlock()

	t.touchdownsMu.Lock()
	t.touchdowns = nil
	t.touchdownsMu.Unlock()

	t.resumeMu.Lock()
	t.resume = nil
	t.resumeMu.Unlock()

	t.mu.Lock()
	t.trackingStarted = time.Time{}
	t.trackingStopped = time.Time{}
	t.pausedAt = time.Time{}
	t.pausedTotal = 0
	t.wasAirborne = false
	t.groundHandlingComplete = false
	t.pendingFinalize = false
	t.warpSaved = 0
	t.onlineDuration = 0
	t.mu.Unlock()

	t.rulesMu.Lock()
	t.rules = ruleState{}
	t.rulesMu.Unlock()

	t.timesMu.Lock()
	t.lastAutoSave = time.Time{}
	t.lastPositionUpload = time.Time{}
	t.lastCloudUpload = time.Time{}
	t.timesMu.Unlock()
}
