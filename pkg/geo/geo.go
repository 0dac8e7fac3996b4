// Package geo provides the geographic math used by the planner and simulator.
// All functions are pure; NaN inputs propagate and must be guarded by callers.
package geo

import (
	"math"
)

const earthRadiusM = 6371000

// Point represents a geographic coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLng := ShortestLngDiff(p1.Lng, p2.Lng) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2,
// normalized to [0, 360) degrees.
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLng := ShortestLngDiff(p1.Lng, p2.Lng) * (math.Pi / 180.0)

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// NormalizeLongitude maps a longitude to the [-180, 180] range.
func NormalizeLongitude(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

// ShortestLngDiff returns the signed shortest difference between two
// longitudes in [-180, 180], crossing the antimeridian when shorter.
func ShortestLngDiff(from, to float64) float64 {
	diff := to - from
	for diff > 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}
	return diff
}

// Interpolate linearly interpolates between two points for t in [0,1],
// taking the shortest arc across the antimeridian for longitude.
func Interpolate(from, to Point, t float64) Point {
	return Point{
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Lng: NormalizeLongitude(from.Lng + ShortestLngDiff(from.Lng, to.Lng)*t),
	}
}

// DestinationPoint calculates the destination from a start point, given a
// distance in meters and a bearing in degrees.
func DestinationPoint(start Point, distMeters, bearing float64) Point {
	lat1 := start.Lat * (math.Pi / 180.0)
	lng1 := start.Lng * (math.Pi / 180.0)
	brng := bearing * (math.Pi / 180.0)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(distMeters/earthRadiusM) +
		math.Cos(lat1)*math.Sin(distMeters/earthRadiusM)*math.Cos(brng))
	lng2 := lng1 + math.Atan2(math.Sin(brng)*math.Sin(distMeters/earthRadiusM)*math.Cos(lat1),
		math.Cos(distMeters/earthRadiusM)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * (180.0 / math.Pi),
		Lng: NormalizeLongitude(lng2 * (180.0 / math.Pi)),
	}
}
