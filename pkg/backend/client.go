// Package backend implements the OpenSky API call contract the tracking core
// depends on. Transport details stay behind the Client interface.
package backend

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PositionReport is the compact periodic report uploaded while tracking.
type PositionReport struct {
	FlightID         uuid.UUID `json:"flight_id"`
	Time             time.Time `json:"time"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	Alt              float64   `json:"alt"`
	Heading          float64   `json:"heading"`
	Pitch            float64   `json:"pitch"`
	Bank             float64   `json:"bank"`
	GroundSpeed      float64   `json:"ground_speed"`
	Airspeed         float64   `json:"airspeed"`
	VerticalSpeed    float64   `json:"vertical_speed"`
	OnGround         bool      `json:"on_ground"`
	RadioHeight      float64   `json:"radio_height"`
	SimRate          float64   `json:"sim_rate"`
	FuelGallons      float64   `json:"fuel_gallons"`
	WarpSavedSec     float64   `json:"warp_saved_sec"`
	OnlineNetworkSec float64   `json:"online_network_sec"`
}

// FinalReport bundles the last position report with the full flight log.
type FinalReport struct {
	FinalPositionReport PositionReport `json:"final_position_report"`
	FlightLog           string         `json:"flight_log"` // base64 gzip
}

// AutoSave is a downloaded cloud auto-save.
type AutoSave struct {
	FlightLog string    `json:"flight_log"` // base64 gzip
	SavedAt   time.Time `json:"saved_at"`
}

// Client is the async call contract against the OpenSky backend.
// Implementations return an error both for transport failures and for
// server-reported errors.
type Client interface {
	// Ping verifies the backend is reachable and the token is accepted.
	Ping(ctx context.Context) error
	AbortFlight(ctx context.Context, flightID uuid.UUID) error
	PauseFlight(ctx context.Context, flightID uuid.UUID) error
	CompleteFlight(ctx context.Context, final FinalReport) error
	PositionReport(ctx context.Context, report PositionReport) error
	UploadFlightAutoSave(ctx context.Context, flightID uuid.UUID, flightLog string) error
	// DownloadFlightAutoSave returns nil if the backend holds no auto-save
	// for the flight.
	DownloadFlightAutoSave(ctx context.Context, flightID uuid.UUID) (*AutoSave, error)
}
