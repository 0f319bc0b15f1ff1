// Package vatsim polls the VATSIM datafeed to verify the pilot is connected
// to the network when the flight requires it.
package vatsim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/request"
)

// Poll intervals: fast while the pilot is connected, slow otherwise, and a
// middle ground after a fetch error.
const (
	IntervalConnected    = 15 * time.Second
	IntervalDisconnected = 60 * time.Second
	IntervalError        = 30 * time.Second

	// Feeds older than this are considered stale and ignored.
	MaxFeedAge = time.Minute
)

// Data is the subset of the datafeed the agent needs.
type Data struct {
	General General `json:"general"`
	Pilots  []Pilot `json:"pilots"`
}

// General holds feed metadata.
type General struct {
	UpdateTimestamp time.Time `json:"update_timestamp"`
}

// Pilot is one connected pilot.
type Pilot struct {
	CID      int    `json:"cid"`
	Callsign string `json:"callsign"`
}

// Status is the result of the latest evaluation.
type Status struct {
	Online   bool
	Callsign string
	Checked  time.Time
}

// StatusFunc receives status updates after each successful poll.
type StatusFunc func(Status)

// Service polls the datafeed for a specific CID.
type Service struct {
	url      string
	cid      int
	client   *request.Client
	onStatus StatusFunc

	mu     sync.RWMutex
	status Status
}

// NewService creates a poller for the given VATSIM CID.
func NewService(url string, cid int, client *request.Client, onStatus StatusFunc) *Service {
	return &Service{
		url:      url,
		cid:      cid,
		client:   client,
		onStatus: onStatus,
	}
}

// Status returns the latest known status.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run polls until the context is cancelled, adjusting the interval to the
// connection state (15 s connected, 60 s otherwise, 30 s after an error).
func (s *Service) Run(ctx context.Context) {
	interval := IntervalDisconnected
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		online, err := s.poll(ctx)
		switch {
		case err != nil:
			slog.Warn("vatsim poll failed", "error", err)
			interval = IntervalError
		case online:
			interval = IntervalConnected
		default:
			interval = IntervalDisconnected
		}
	}
}

func (s *Service) poll(ctx context.Context) (bool, error) {
	raw, err := s.client.Get(ctx, s.url, nil)
	if err != nil {
		return false, err
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return false, fmt.Errorf("failed to decode datafeed: %w", err)
	}

	return s.Evaluate(&data, time.Now().UTC())
}

// Evaluate applies the staleness check and looks for the CID. Split out of
// poll for testability.
func (s *Service) Evaluate(data *Data, now time.Time) (bool, error) {
	if now.Sub(data.General.UpdateTimestamp) > MaxFeedAge {
		return s.Status().Online, fmt.Errorf("datafeed stale: %s", data.General.UpdateTimestamp)
	}

	st := Status{Checked: now}
	for i := range data.Pilots {
		if data.Pilots[i].CID == s.cid {
			st.Online = true
			st.Callsign = data.Pilots[i].Callsign
			break
		}
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	if s.onStatus != nil {
		s.onStatus(st)
	}
	return st.Online, nil
}
