package tracking

import "github.com/opensky-to/agent-sub001/pkg/model"

// Notifier receives push notifications from the tracker. Implementations
// must not block; slow consumers should buffer internally.
type Notifier interface {
	FlightChanged(f *model.Flight)
	TrackingStatusChanged(s model.TrackingStatus)
	TrackingEventMarkerAdded(m model.EventMarker)
	LocationChanged(lat, lon, alt float64)
	// LandingReported fires once per landing report. td is nil for the
	// after-engines-off summary notification.
	LandingReported(timing model.LandingReportTiming, td *model.TouchDown)
	TrackingAborted(reason model.AbortReason, resumeAllowed bool, message string)
}

// Subscribe registers a notifier. Not safe to call concurrently with event
// delivery ordering guarantees; register before Start.
func (t *Tracker) Subscribe(n Notifier) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.notifiers = append(t.notifiers, n)
}

func (t *Tracker) notifyFlight(f *model.Flight) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.FlightChanged(f)
	}
}

func (t *Tracker) notifyStatus(s model.TrackingStatus) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.TrackingStatusChanged(s)
	}
}

func (t *Tracker) notifyMarker(m model.EventMarker) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.TrackingEventMarkerAdded(m)
	}
}

func (t *Tracker) notifyLocation(lat, lon, alt float64) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.LocationChanged(lat, lon, alt)
	}
}

func (t *Tracker) notifyLanding(timing model.LandingReportTiming, td *model.TouchDown) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.LandingReported(timing, td)
	}
}

func (t *Tracker) notifyAborted(reason model.AbortReason, resumeAllowed bool, message string) {
	t.notifyMu.RLock()
	defer t.notifyMu.RUnlock()
	for _, n := range t.notifiers {
		n.TrackingAborted(reason, resumeAllowed, message)
	}
}
