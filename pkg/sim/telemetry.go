// Package sim defines the telemetry snapshot types and the capability
// interface a simulator bridge must implement.
package sim

import "time"

// PrimaryTelemetry covers flight dynamics: position, attitude, speeds.
type PrimaryTelemetry struct {
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	AltitudeMSL       float64 `json:"altitude_msl"`       // ft
	IndicatedAltitude float64 `json:"indicated_altitude"` // ft
	RadioHeight       float64 `json:"radio_height"`       // ft AGL
	Pitch             float64 `json:"pitch"`              // degrees
	Bank              float64 `json:"bank"`
	Heading           float64 `json:"heading"` // degrees true
	AirspeedIndicated float64 `json:"airspeed_indicated"` // kt
	AirspeedTrue      float64 `json:"airspeed_true"`
	GroundSpeed       float64 `json:"ground_speed"`
	VerticalSpeed     float64 `json:"vertical_speed"` // fpm
	GForce            float64 `json:"g_force"`
	SimRate           float64 `json:"sim_rate"`
	SlewActive        bool    `json:"slew_active"`
	Crashed           bool    `json:"crashed"`
	OnGround          bool    `json:"on_ground"`
	OverspeedWarning  bool    `json:"overspeed_warning"`
	StallWarning      bool    `json:"stall_warning"`
}

// SecondaryTelemetry covers systems, switches and the sim clock.
type SecondaryTelemetry struct {
	TimeInSim      time.Time `json:"time_in_sim"` // sim UTC clock
	TimeOfDay      string    `json:"time_of_day"` // day/dusk/night
	BeaconLight    bool      `json:"beacon_light"`
	LandingLight   bool      `json:"landing_light"`
	TaxiLight      bool      `json:"taxi_light"`
	NavLight       bool      `json:"nav_light"`
	StrobeLight    bool      `json:"strobe_light"`
	EngineRunning  bool      `json:"engine_running"`
	PushbackActive bool      `json:"pushback_active"`
	UnlimitedFuel  bool      `json:"unlimited_fuel"`
	FuelGallons    float64   `json:"fuel_gallons"`
	PayloadPounds  float64   `json:"payload_pounds"`
}

// LandingTelemetry covers touchdown-relevant kinematics, sampled at high
// frequency close to the ground.
type LandingTelemetry struct {
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Alt           float64 `json:"alt"` // ft MSL
	OnGround      bool    `json:"on_ground"`
	VerticalSpeed float64 `json:"vertical_speed"` // fpm, negative descending
	GForce        float64 `json:"g_force"`
	SideSlip      float64 `json:"side_slip"` // degrees
	Bank          float64 `json:"bank"`
	HeadWind      float64 `json:"head_wind"` // kt
	CrossWind     float64 `json:"cross_wind"`
	GroundSpeed   float64 `json:"ground_speed"`
	AirspeedTrue  float64 `json:"airspeed_true"`
}

// Pair carries two consecutive snapshots of one stream. Both sides nil is the
// bridge's first-fill sentinel; a single nil side is malformed input.
type Pair[T any] struct {
	Old *T
	New *T
}

// Valid reports whether both sides of the pair are present.
func (p Pair[T]) Valid() bool {
	return p.Old != nil && p.New != nil
}

// Sentinel reports whether the pair is the first-fill sentinel.
func (p Pair[T]) Sentinel() bool {
	return p.Old == nil && p.New == nil
}
