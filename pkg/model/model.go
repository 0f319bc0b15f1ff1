// Package model holds the shared value objects of the tracking core.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TrackingStatus is the lifecycle state of the flight tracker.
type TrackingStatus string

const (
	StatusNotTracking      TrackingStatus = "not_tracking"
	StatusPreparing        TrackingStatus = "preparing"
	StatusGroundOperations TrackingStatus = "ground_operations"
	StatusTracking         TrackingStatus = "tracking"
	StatusResuming         TrackingStatus = "resuming"
)

// EngineClass groups aircraft types for altitude-dependent rules.
type EngineClass string

const (
	EngineJet       EngineClass = "jet"
	EngineTurboprop EngineClass = "turboprop"
	EnginePiston    EngineClass = "piston"
	EngineNone      EngineClass = "none"
)

// Airport identifies one of the flight's planned airports.
type Airport struct {
	ICAO string  `json:"icao"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Waypoint is a nav-log fix imported from the flight plan.
type Waypoint struct {
	Ident string  `json:"ident"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// Flight is the active flight assignment. The tracking core treats it as
// read-mostly input owned by the dispatch layer.
type Flight struct {
	ID                  uuid.UUID   `json:"id"`
	Registry            string      `json:"registry"`
	AircraftType        string      `json:"aircraft_type"`
	EngineClass         EngineClass `json:"engine_class"`
	Origin              Airport     `json:"origin"`
	Destination         Airport     `json:"destination"`
	Alternate           Airport     `json:"alternate"`
	FuelGallons         float64     `json:"fuel_gallons"`
	PayloadPounds       float64     `json:"payload_pounds"`
	PayloadSummary      string      `json:"payload_summary"`
	PayloadDeltaAllowed float64     `json:"payload_delta_allowed"` // lbs, per aircraft type
	Resume              bool        `json:"resume"`
	OnlineNetwork       string      `json:"online_network"` // "" or "vatsim"
	NavLog              []Waypoint  `json:"nav_log"`
}

// EventType classifies tracking event log entries.
type EventType string

const (
	EventTracking       EventType = "tracking"  // lifecycle: started/paused/resumed/stopped
	EventViolation      EventType = "violation" // rule violations and aborts
	EventSystems        EventType = "systems"   // engines, pushback, switches
	EventLights         EventType = "lights"
	EventSpeed          EventType = "speed" // overspeed/stall/speed limit
	EventTouchdown      EventType = "touchdown"
	EventSimTime        EventType = "simtime"
	EventPositionReport EventType = "position"
)

// Marker colors used by the map layer.
const (
	ColorInfo      = "darkgray"
	ColorOK        = "teal"
	ColorWarning   = "darkorange"
	ColorViolation = "orangered"
	ColorAirport   = "darkblue"
)

// EventLogEntry is one time-stamped line of the tracking event log.
// Entries are append-only and never mutated after creation.
type EventLogEntry struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"` // UTC
	Color   string    `json:"color"`
	Message string    `json:"message"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Alt     float64   `json:"alt"`
}

// EventMarker is a renderable map point. Non-position-report markers within
// 20 meters of each other are coalesced by appending tooltip lines.
type EventMarker struct {
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	Alt              float64   `json:"alt"`
	Text             string    `json:"text"`
	Color            string    `json:"color"`
	Size             int       `json:"size"`
	IsAirportMarker  bool      `json:"is_airport_marker"`
	IsWaypoint       bool      `json:"is_waypoint"`
	IsPositionReport bool      `json:"is_position_report"`
	Created          time.Time `json:"created"`
}

// AppendText adds a tooltip line to an existing marker.
func (m *EventMarker) AppendText(line string) {
	if m.Text == "" {
		m.Text = line
		return
	}
	m.Text += "\n" + line
}

// TrailPoint is a polyline vertex of the recorded aircraft trail.
type TrailPoint struct {
	Time        time.Time `json:"time"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Alt         float64   `json:"alt"`
	Airspeed    float64   `json:"airspeed"`     // kt indicated
	GroundSpeed float64   `json:"ground_speed"` // kt
	OnGround    bool      `json:"on_ground"`
	RadioAlt    float64   `json:"radio_alt"` // ft AGL
	Heading     float64   `json:"heading"`
	FuelOnBoard float64   `json:"fuel_on_board"` // gallons
	SimRate     float64   `json:"sim_rate"`
	TimeOfDay   string    `json:"time_of_day"`
}

// TouchDown is a landing report computed once per touchdown transition.
type TouchDown struct {
	Time        time.Time `json:"time"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Alt         float64   `json:"alt"`
	LandingRate float64   `json:"landing_rate"` // fpm, positive = downward
	GForce      float64   `json:"g_force"`
	SideSlip    float64   `json:"side_slip"` // degrees
	HeadWind    float64   `json:"head_wind"` // kt
	CrossWind   float64   `json:"cross_wind"`
	Bank        float64   `json:"bank"`
	GroundSpeed float64   `json:"ground_speed"`
	Airspeed    float64   `json:"airspeed"`
}

// AbortReason categorizes why tracking was stopped by the rule engine.
type AbortReason string

const (
	AbortSlew           AbortReason = "slew"
	AbortTeleport       AbortReason = "teleport"
	AbortCrash          AbortReason = "crash"
	AbortUnlimitedFuel  AbortReason = "unlimited_fuel"
	AbortFuelIncrease   AbortReason = "fuel_increase"
	AbortPayloadChange  AbortReason = "payload_change"
	AbortGroundHandling AbortReason = "ground_handling"
)

// LandingReportTiming hints the notification layer when to surface the
// landing report.
type LandingReportTiming string

const (
	ReportImmediate       LandingReportTiming = "immediate"
	ReportAfterEnginesOff LandingReportTiming = "after_engines_off"
)
