package tracking

import (
	"time"

	"github.com/opensky-to/agent-sub001/pkg/geo"
	"github.com/opensky-to/agent-sub001/pkg/logging"
	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// markerCoalesceDistance is the radius within which consecutive event
// markers merge into one tooltip instead of cluttering the map.
const markerCoalesceDistance = 20.0 // meters

// headingTurnThreshold decides turning vs. straight flight for the position
// report gating table.
const headingTurnThreshold = 5.0 // degrees

// AddTrackingEvent appends an event at the aircraft's last known position.
// Events are dropped outside of active tracking so that free-flight
// experiments never pollute the log.
func (t *Tracker) AddTrackingEvent(typ model.EventType, color, message string) {
	p, _ := t.latestSnapshots()
	if p == nil {
		t.addEvent(0, 0, 0, typ, color, message)
		return
	}
	t.addEvent(p.Lat, p.Lon, p.AltitudeMSL, typ, color, message)
}

func (t *Tracker) addEvent(lat, lon, alt float64, typ model.EventType, color, message string) {
	status := t.Status()
	if status != model.StatusGroundOperations && status != model.StatusTracking {
		return
	}

	entry := model.EventLogEntry{
		Type:    typ,
		Time:    time.Now().UTC(),
		Color:   color,
		Message: message,
		Lat:     lat,
		Lon:     lon,
		Alt:     alt,
	}

	t.logMu.Lock()
	t.eventLog = append(t.eventLog, entry)
	t.logMu.Unlock()

	logging.LogEvent(&entry)

	t.upsertMarker(lat, lon, alt, color, message)
}

// upsertMarker appends a map marker, coalescing with the previous event
// marker when the aircraft has barely moved. The anchor is the previous
// marker's own position, so a slowly creeping aircraft eventually breaks the
// chain.
func (t *Tracker) upsertMarker(lat, lon, alt float64, color, message string) {
	t.markersMu.Lock()

	if t.lastMarker != nil {
		d := geo.Distance(
			geo.Point{Lat: t.lastMarker.Lat, Lon: t.lastMarker.Lon},
			geo.Point{Lat: lat, Lon: lon},
		)
		if d <= markerCoalesceDistance {
			t.lastMarker.AppendText(message)
			m := *t.lastMarker
			t.markersMu.Unlock()
			t.notifyMarker(m)
			return
		}
	}

	marker := &model.EventMarker{
		Lat:     lat,
		Lon:     lon,
		Alt:     alt,
		Text:    message,
		Color:   color,
		Size:    12,
		Created: time.Now().UTC(),
	}
	t.markers = append(t.markers, marker)
	t.lastMarker = marker
	m := *marker
	t.markersMu.Unlock()

	t.notifyMarker(m)
}

// addAirportMarkers places the planned airports on the map. Airport markers
// bypass the status gate and never participate in coalescing.
func (t *Tracker) addAirportMarkers(f *model.Flight) {
	airports := []model.Airport{f.Origin, f.Destination}
	if f.Alternate.ICAO != "" {
		airports = append(airports, f.Alternate)
	}

	t.markersMu.Lock()
	defer t.markersMu.Unlock()
	for _, a := range airports {
		t.markers = append(t.markers, &model.EventMarker{
			Lat:             a.Lat,
			Lon:             a.Lon,
			Text:            a.ICAO + " " + a.Name,
			Color:           model.ColorAirport,
			Size:            16,
			IsAirportMarker: true,
			Created:         time.Now().UTC(),
		})
	}
}

// addNavLogMarkers places the flight plan's nav-log fixes on the map. Like
// airport markers they bypass the status gate, never coalesce and are
// regenerated on load instead of saved.
func (t *Tracker) addNavLogMarkers(waypoints []model.Waypoint) {
	if len(waypoints) == 0 {
		return
	}

	t.markersMu.Lock()
	defer t.markersMu.Unlock()
	for _, w := range waypoints {
		t.markers = append(t.markers, &model.EventMarker{
			Lat:        w.Lat,
			Lon:        w.Lon,
			Text:       w.Ident,
			Color:      model.ColorInfo,
			Size:       8,
			IsWaypoint: true,
			Created:    time.Now().UTC(),
		})
	}
}

// addPositionReport appends a trail point and a small map dot if the
// aircraft has moved far enough since the last one. The minimum distance
// scales with speed, altitude band and whether the aircraft is turning, so
// that taxiing and turns stay crisp while cruise stays cheap.
func (t *Tracker) addPositionReport(p *sim.PrimaryTelemetry) {
	status := t.Status()
	if status != model.StatusGroundOperations && status != model.StatusTracking {
		t.trailMu.Lock()
		t.lastTrailPos = nil
		t.trailMu.Unlock()
		return
	}

	var engineClass model.EngineClass
	t.mu.RLock()
	if t.flight != nil {
		engineClass = t.flight.EngineClass
	}
	t.mu.RUnlock()

	pos := geo.Point{Lat: p.Lat, Lon: p.Lon}

	t.trailMu.Lock()
	if t.lastTrailPos != nil {
		turning := isTurning(p.Heading, t.lastTrailHdg)
		min := minReportDistance(p, turning, engineClass)
		if geo.Distance(*t.lastTrailPos, pos) < min {
			t.trailMu.Unlock()
			return
		}
	}

	_, sec := t.latestSnapshots()
	point := model.TrailPoint{
		Time:        time.Now().UTC(),
		Lat:         p.Lat,
		Lon:         p.Lon,
		Alt:         p.AltitudeMSL,
		Airspeed:    p.AirspeedIndicated,
		GroundSpeed: p.GroundSpeed,
		OnGround:    p.OnGround,
		RadioAlt:    p.RadioHeight,
		Heading:     p.Heading,
		SimRate:     p.SimRate,
	}
	if sec != nil {
		point.FuelOnBoard = sec.FuelGallons
		point.TimeOfDay = sec.TimeOfDay
	}
	t.trail = append(t.trail, point)
	t.lastTrailPos = &pos
	t.lastTrailHdg = p.Heading
	t.trailMu.Unlock()

	t.markersMu.Lock()
	// Position dots are not coalescing anchors; a dense trail must not
	// swallow the next real event marker.
	t.markers = append(t.markers, &model.EventMarker{
		Lat:              p.Lat,
		Lon:              p.Lon,
		Alt:              p.AltitudeMSL,
		Color:            model.ColorInfo,
		Size:             4,
		IsPositionReport: true,
		Created:          point.Time,
	})
	t.markersMu.Unlock()
}

func isTurning(heading, lastHeading float64) bool {
	return geo.NormalizeAngle(heading-lastHeading) > headingTurnThreshold ||
		geo.NormalizeAngle(heading-lastHeading) < -headingTurnThreshold
}

// minReportDistance is the gating table for trail density, in meters.
func minReportDistance(p *sim.PrimaryTelemetry, turning bool, ec model.EngineClass) float64 {
	speed := p.GroundSpeed

	if p.OnGround {
		if turning {
			return geo.Clamp(speed, 15, 30)
		}
		return geo.Clamp(speed*6, 50, 500)
	}

	lowAGL := 1000.0
	if ec == model.EngineJet || ec == model.EngineTurboprop {
		lowAGL = 2500.0
	}
	if p.RadioHeight < lowAGL {
		if turning {
			return geo.Clamp(speed*2, 100, 300)
		}
		return geo.Clamp(speed*10, 200, 1000)
	}

	if turning {
		return geo.Clamp(speed*2, 300, 1000)
	}
	return geo.Clamp(speed*22, 2000, 10000)
}
