// Package geo provides the small set of spherical helpers the tracker needs.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// KnotsToMetersPerSecond converts a speed in knots to m/s using the same
// divisor the save-file format has always used. Do not "fix" the constant:
// the teleport threshold depends on it bit-for-bit.
const KnotsToMetersPerSecond = 1.0 / 1.944

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Orb returns the point in orb's lon/lat order.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// Distance returns the haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	return orbgeo.DistanceHaversine(p1.Orb(), p2.Orb())
}

// Bearing returns the initial bearing from p1 to p2 in degrees [0, 360).
func Bearing(p1, p2 Point) float64 {
	b := orbgeo.Bearing(p1.Orb(), p2.Orb())
	return math.Mod(b+360.0, 360.0)
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
