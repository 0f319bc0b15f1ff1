package sim

import (
	"errors"
	"sync"
	"time"
)

// ErrNotConnected is returned when a bridge action requires a connection.
var ErrNotConnected = errors.New("simulator not connected")

// Stream names the three independently sampled telemetry streams.
type Stream string

const (
	StreamPrimary   Stream = "primary"
	StreamSecondary Stream = "secondary"
	StreamLanding   Stream = "landing"
)

// Default and special-case sample intervals.
const (
	DefaultSampleInterval = 500 * time.Millisecond
	IdleSampleInterval    = 15 * time.Second
	FastSampleInterval    = 2 * time.Second
	LandingBoostInterval  = 25 * time.Millisecond
)

// Source is the capability interface a simulator bridge implements.
// The tracking core mutates sample rates and requests ad-hoc refreshes; the
// bridge is responsible for sampling at the configured rates and pushing
// snapshot pairs into the core's queues.
type Source interface {
	// SetSampleRate changes the polling interval for a stream.
	SetSampleRate(s Stream, d time.Duration)
	// SampleRate returns the currently configured interval for a stream.
	SampleRate(s Stream) time.Duration
	// RequestRefresh forces an immediate re-poll of a stream's models.
	RequestRefresh(s Stream)
	// Close cleans up resources associated with the bridge.
	Close() error
}

// Consumer is the ingestion side of the tracking core, fed by the bridge.
type Consumer interface {
	EnqueuePrimary(p Pair[PrimaryTelemetry])
	EnqueueSecondary(p Pair[SecondaryTelemetry])
	EnqueueLanding(p Pair[LandingTelemetry])
}

// RateTable is a concurrency-safe stream-to-interval mapping bridges can
// embed to satisfy the sample-rate half of Source.
type RateTable struct {
	mu    sync.RWMutex
	rates map[Stream]time.Duration
}

// NewRateTable returns a table with all streams at the default interval.
func NewRateTable() *RateTable {
	return &RateTable{
		rates: map[Stream]time.Duration{
			StreamPrimary:   DefaultSampleInterval,
			StreamSecondary: DefaultSampleInterval,
			StreamLanding:   DefaultSampleInterval,
		},
	}
}

// SetSampleRate changes the polling interval for a stream.
func (r *RateTable) SetSampleRate(s Stream, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[s] = d
}

// SampleRate returns the configured interval, or the default for unknown
// streams.
func (r *RateTable) SampleRate(s Stream) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.rates[s]; ok {
		return d
	}
	return DefaultSampleInterval
}
