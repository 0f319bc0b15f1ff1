package tracking

import (
	"fmt"
	"math"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/model"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// Landing rate bands for event coloring.
const (
	landingRateSmooth = 250.0 // fpm
	landingRateFirm   = 600.0
)

// processLanding watches the high-frequency landing stream for the
// airborne-to-ground transition and computes one touchdown report per
// transition. Bounces append further reports silently; only the first
// touchdown of the flight surfaces as an event and an immediate signal.
func (t *Tracker) processLanding(p sim.Pair[sim.LandingTelemetry]) {
	if t.Status() != model.StatusTracking {
		return
	}

	old, cur := p.Old, p.New

	t.rulesMu.Lock()
	defer t.rulesMu.Unlock()

	if !cur.OnGround {
		t.rules.airborne = true
		return
	}

	if !t.rules.airborne || old.OnGround {
		return
	}

	// Touchdown. The sim reports vertical speed negative going down; the
	// landing rate is published as a positive number. G force peaks on
	// either side of the transition, take the worse one.
	td := model.TouchDown{
		Time:        time.Now().UTC(),
		Lat:         cur.Lat,
		Lon:         cur.Lon,
		Alt:         cur.Alt,
		LandingRate: -cur.VerticalSpeed,
		GForce:      math.Max(old.GForce, cur.GForce),
		SideSlip:    cur.SideSlip,
		HeadWind:    cur.HeadWind,
		CrossWind:   cur.CrossWind,
		Bank:        cur.Bank,
		GroundSpeed: cur.GroundSpeed,
		Airspeed:    cur.AirspeedTrue,
	}

	t.touchdownsMu.Lock()
	t.touchdowns = append(t.touchdowns, td)
	first := len(t.touchdowns) == 1
	t.touchdownsMu.Unlock()

	if !first {
		return
	}

	color := model.ColorOK
	switch {
	case td.LandingRate > landingRateFirm:
		color = model.ColorViolation
	case td.LandingRate > landingRateSmooth:
		color = model.ColorWarning
	}
	t.addEvent(cur.Lat, cur.Lon, cur.Alt, model.EventTouchdown, color,
		fmt.Sprintf("Touched down at %.0f fpm, %.2f G", td.LandingRate, td.GForce))

	t.notifyLanding(model.ReportImmediate, &td)
}
