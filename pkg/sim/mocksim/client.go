// Package mocksim provides a scripted simulator bridge for development and
// tests. It drives a simple flight profile and pushes snapshot pairs into the
// tracking core at the configured sample rates.
package mocksim

import (
	"math"
	"sync"
	"time"

	"github.com/opensky-to/agent-sub001/pkg/geo"
	"github.com/opensky-to/agent-sub001/pkg/sim"
)

// Flight profile phases.
const (
	phaseParked   = "parked"
	phaseTaxi     = "taxi"
	phaseTakeoff  = "takeoff"
	phaseCruise   = "cruise"
	phaseApproach = "approach"
	phaseLanded   = "landed"
)

const tickInterval = 100 * time.Millisecond

// Config holds the mock's starting position.
type Config struct {
	StartLat     float64
	StartLon     float64
	StartHeading float64
}

// Client implements sim.Source and feeds a sim.Consumer.
type Client struct {
	*sim.RateTable

	mu       sync.Mutex
	consumer sim.Consumer
	phase    string
	started  time.Time

	lat, lon float64
	heading  float64
	altMSL   float64
	groundFt float64
	speed    float64 // kt ground speed
	vs       float64 // fpm

	lastPrimary   *sim.PrimaryTelemetry
	lastSecondary *sim.SecondaryTelemetry
	lastLanding   *sim.LandingTelemetry
	lastPushP     time.Time
	lastPushS     time.Time
	lastPushL     time.Time

	engineOn bool
	beacon   bool
	landing  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a mock bridge feeding the given consumer.
func NewClient(cfg Config, consumer sim.Consumer) *Client {
	c := &Client{
		RateTable: sim.NewRateTable(),
		consumer:  consumer,
		phase:     phaseParked,
		started:   time.Now(),
		lat:       cfg.StartLat,
		lon:       cfg.StartLon,
		heading:   cfg.StartHeading,
		groundFt:  1416, // field elevation
		altMSL:    1416,
		stopCh:    make(chan struct{}),
	}

	// First-fill sentinel, one per stream
	consumer.EnqueuePrimary(sim.Pair[sim.PrimaryTelemetry]{})
	consumer.EnqueueSecondary(sim.Pair[sim.SecondaryTelemetry]{})
	consumer.EnqueueLanding(sim.Pair[sim.LandingTelemetry]{})

	c.wg.Add(1)
	go c.loop()
	return c
}

// RequestRefresh pushes a fresh pair for the stream immediately.
func (c *Client) RequestRefresh(s sim.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.push(s)
}

// Close stops the physics loop.
func (c *Client) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	return nil
}

func (c *Client) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Client) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.advancePhase()
	c.advancePhysics(tickInterval.Seconds())

	now := time.Now()
	if now.Sub(c.lastPushP) >= c.SampleRate(sim.StreamPrimary) {
		c.push(sim.StreamPrimary)
		c.lastPushP = now
	}
	if now.Sub(c.lastPushS) >= c.SampleRate(sim.StreamSecondary) {
		c.push(sim.StreamSecondary)
		c.lastPushS = now
	}
	if now.Sub(c.lastPushL) >= c.SampleRate(sim.StreamLanding) {
		c.push(sim.StreamLanding)
		c.lastPushL = now
	}
}

// advancePhase walks the scripted profile on wall-clock time.
func (c *Client) advancePhase() {
	elapsed := time.Since(c.started)
	switch {
	case elapsed < 30*time.Second:
		c.phase = phaseParked
	case elapsed < 2*time.Minute:
		c.phase = phaseTaxi
	case elapsed < 4*time.Minute:
		c.phase = phaseTakeoff
	case elapsed < 20*time.Minute:
		c.phase = phaseCruise
	case elapsed < 24*time.Minute:
		c.phase = phaseApproach
	default:
		c.phase = phaseLanded
	}
}

func (c *Client) advancePhysics(dt float64) {
	switch c.phase {
	case phaseParked:
		c.speed, c.vs, c.engineOn = 0, 0, false
	case phaseTaxi:
		c.engineOn, c.beacon = true, true
		c.speed = 15
		c.vs = 0
	case phaseTakeoff:
		c.engineOn, c.beacon, c.landing = true, true, true
		c.speed = math.Min(c.speed+5, 180)
		if c.speed > 140 {
			c.vs = 1800
		}
	case phaseCruise:
		c.speed = 250
		if c.altMSL < 12000 {
			c.vs = 1500
		} else {
			c.vs = 0
			c.landing = false
		}
	case phaseApproach:
		c.speed = 140
		if c.altMSL > c.groundFt+50 {
			c.vs = -800
			c.landing = true
		} else {
			c.vs = 0
		}
	case phaseLanded:
		c.speed = math.Max(c.speed-3, 0)
		c.vs = 0
		if c.speed == 0 {
			c.engineOn = false
			c.beacon = false
			c.landing = false
		}
	}

	c.altMSL += c.vs / 60 * dt
	if c.altMSL < c.groundFt {
		c.altMSL = c.groundFt
	}

	// Move along the heading
	distM := c.speed * geo.KnotsToMetersPerSecond * dt
	if distM > 0 {
		p := destination(geo.Point{Lat: c.lat, Lon: c.lon}, distM, c.heading)
		c.lat, c.lon = p.Lat, p.Lon
	}
}

func (c *Client) onGround() bool {
	return c.altMSL <= c.groundFt+1
}

// push builds a snapshot for the stream and enqueues it paired with the
// previous one. Callers hold c.mu.
func (c *Client) push(s sim.Stream) {
	switch s {
	case sim.StreamPrimary:
		cur := &sim.PrimaryTelemetry{
			Lat:               c.lat,
			Lon:               c.lon,
			AltitudeMSL:       c.altMSL,
			IndicatedAltitude: c.altMSL,
			RadioHeight:       c.altMSL - c.groundFt,
			Heading:           c.heading,
			AirspeedIndicated: c.speed,
			AirspeedTrue:      c.speed,
			GroundSpeed:       c.speed,
			VerticalSpeed:     c.vs,
			GForce:            1.0,
			SimRate:           1.0,
			OnGround:          c.onGround(),
		}
		if c.lastPrimary != nil {
			c.consumer.EnqueuePrimary(sim.Pair[sim.PrimaryTelemetry]{Old: c.lastPrimary, New: cur})
		}
		c.lastPrimary = cur
	case sim.StreamSecondary:
		cur := &sim.SecondaryTelemetry{
			TimeInSim:     time.Now().UTC(),
			TimeOfDay:     "day",
			BeaconLight:   c.beacon,
			LandingLight:  c.landing,
			NavLight:      c.engineOn,
			EngineRunning: c.engineOn,
			FuelGallons:   120,
			PayloadPounds: 850,
		}
		if c.lastSecondary != nil {
			c.consumer.EnqueueSecondary(sim.Pair[sim.SecondaryTelemetry]{Old: c.lastSecondary, New: cur})
		}
		c.lastSecondary = cur
	case sim.StreamLanding:
		cur := &sim.LandingTelemetry{
			Lat:           c.lat,
			Lon:           c.lon,
			Alt:           c.altMSL,
			OnGround:      c.onGround(),
			VerticalSpeed: c.vs,
			GForce:        1.0,
			GroundSpeed:   c.speed,
			AirspeedTrue:  c.speed,
		}
		if c.lastLanding != nil {
			c.consumer.EnqueueLanding(sim.Pair[sim.LandingTelemetry]{Old: c.lastLanding, New: cur})
		}
		c.lastLanding = cur
	}
}

// destination computes the point reached from start after moving distM meters
// on the given bearing.
func destination(start geo.Point, distM, bearing float64) geo.Point {
	const earthR = 6371000.0
	lat1 := start.Lat * math.Pi / 180
	lon1 := start.Lon * math.Pi / 180
	brng := bearing * math.Pi / 180

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distM/earthR) +
		math.Cos(lat1)*math.Sin(distM/earthR)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(distM/earthR)*math.Cos(lat1),
		math.Cos(distM/earthR)-math.Sin(lat1)*math.Sin(lat2))

	return geo.Point{Lat: lat2 * 180 / math.Pi, Lon: lon2 * 180 / math.Pi}
}
