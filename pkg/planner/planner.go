// Package planner converts coverage polygons into ordered waypoint lists.
// All generators are pure and safe to call from any goroutine.
package planner

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
)

const (
	// metersPerDegree is the approximate length of one degree of latitude.
	metersPerDegree = 111000.0

	// swathFactor approximates camera ground coverage as a fraction of
	// flight altitude.
	swathFactor = 0.8

	// minLineSpacingM keeps scan lines from collapsing at high overlap.
	minLineSpacingM = 10.0

	// maxScanLines caps the crosshatch sweep.
	maxScanLines = 50

	spiralTurns         = 5
	spiralPointsPerTurn = 12
)

// Plan generates a flight path over the polygon's outer ring using the
// given pattern. Longitudes are normalized before planning; a polygon with
// fewer than 3 distinct vertices yields an empty waypoint list.
func Plan(area model.Polygon, pattern model.PatternType, altitude, overlap, speed float64) *model.FlightPath {
	area.NormalizeLongitudes()

	var waypoints []model.Waypoint
	switch pattern {
	case model.PatternPerimeter:
		waypoints = perimeterPath(area, altitude)
	case model.PatternCrosshatch:
		waypoints = crosshatchPath(area, altitude, overlap)
	case model.PatternSpiral:
		waypoints = spiralPath(area, altitude)
	default:
		waypoints = waypointPath(area, altitude)
	}

	return finishPath(pattern, waypoints, speed)
}

func finishPath(pattern model.PatternType, waypoints []model.Waypoint, speed float64) *model.FlightPath {
	dist := PathDistance(waypoints)
	duration := 0.0
	if speed > 0 {
		duration = dist / speed
	}
	return &model.FlightPath{
		Pattern:           pattern,
		Waypoints:         waypoints,
		TotalDistance:     dist,
		EstimatedDuration: duration,
	}
}

// PathDistance sums the Haversine hops of a waypoint list in meters.
func PathDistance(waypoints []model.Waypoint) float64 {
	total := 0.0
	for i := 1; i < len(waypoints); i++ {
		total += geo.Distance(
			geo.Point{Lat: waypoints[i-1].Lat, Lng: waypoints[i-1].Lng},
			geo.Point{Lat: waypoints[i].Lat, Lng: waypoints[i].Lng},
		)
	}
	return total
}

// ring returns the outer ring if it has at least 3 distinct vertices.
func ring(area model.Polygon) orb.Ring {
	r := area.OuterRing()
	if len(distinctVertices(r)) < 3 {
		return nil
	}
	return r
}

// distinctVertices strips the closing duplicate vertex, if present.
func distinctVertices(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// perimeterPath emits each outer-ring vertex in order at survey altitude.
func perimeterPath(area model.Polygon, altitude float64) []model.Waypoint {
	r := ring(area)
	if r == nil {
		return nil
	}
	waypoints := make([]model.Waypoint, 0, len(r))
	for _, pt := range r {
		waypoints = append(waypoints, model.Waypoint{
			Lat:    pt[1],
			Lng:    pt[0],
			Alt:    altitude,
			Action: model.ActionPhoto,
		})
	}
	return waypoints
}

// waypointPath emits the ring vertices minus the closing duplicate; the
// first is a fly waypoint, the rest photo.
func waypointPath(area model.Polygon, altitude float64) []model.Waypoint {
	r := ring(area)
	if r == nil {
		return nil
	}
	verts := distinctVertices(r)
	waypoints := make([]model.Waypoint, 0, len(verts))
	for i, pt := range verts {
		action := model.ActionPhoto
		if i == 0 {
			action = model.ActionFly
		}
		waypoints = append(waypoints, model.Waypoint{
			Lat:    pt[1],
			Lng:    pt[0],
			Alt:    altitude,
			Action: action,
		})
	}
	return waypoints
}

// crosshatchPath sweeps horizontal scan lines south to north across the
// polygon's bounding box, clipping each line against the polygon edges and
// alternating direction (boustrophedon). Entry waypoints fly, exit
// waypoints photo.
func crosshatchPath(area model.Polygon, altitude, overlap float64) []model.Waypoint {
	r := ring(area)
	if r == nil {
		return nil
	}

	bound := r.Bound()
	swath := swathFactor * altitude
	spacingM := math.Max(minLineSpacingM, swath*(1-overlap/100))
	spacingDeg := spacingM / metersPerDegree

	var waypoints []model.Waypoint
	eastbound := true
	lines := 0

	for lat := bound.Min[1]; lat <= bound.Max[1] && lines < maxScanLines; lat += spacingDeg {
		xs := scanlineIntersections(r, lat)
		if len(xs) < 2 {
			continue
		}
		lines++

		// Entry/exit pairs across the polygon interior.
		for i := 0; i+1 < len(xs); i += 2 {
			entry, exit := xs[i], xs[i+1]
			if !eastbound {
				entry, exit = exit, entry
			}
			waypoints = append(waypoints,
				model.Waypoint{Lat: lat, Lng: entry, Alt: altitude, Action: model.ActionFly},
				model.Waypoint{Lat: lat, Lng: exit, Alt: altitude, Action: model.ActionPhoto},
			)
		}
		eastbound = !eastbound
	}

	return waypoints
}

// scanlineIntersections returns the sorted longitudes where the horizontal
// line at lat crosses the ring's edges.
func scanlineIntersections(r orb.Ring, lat float64) []float64 {
	var xs []float64
	for i := 0; i < len(r); i++ {
		a := r[i]
		b := r[(i+1)%len(r)]
		ya, yb := a[1], b[1]
		if (ya > lat) == (yb > lat) {
			continue
		}
		x := a[0] + (lat-ya)*(b[0]-a[0])/(yb-ya)
		xs = append(xs, x)
	}
	sort.Float64s(xs)
	return xs
}

// spiralPath spirals from the polygon's max vertex radius down to its
// centroid, ending with a 3 second hover.
func spiralPath(area model.Polygon, altitude float64) []model.Waypoint {
	r := ring(area)
	if r == nil {
		return nil
	}

	center, _ := area.Centroid()
	maxRadius := 0.0
	for _, pt := range r {
		d := geo.Distance(center, geo.Point{Lat: pt[1], Lng: pt[0]})
		if d > maxRadius {
			maxRadius = d
		}
	}

	total := spiralTurns * spiralPointsPerTurn
	waypoints := make([]model.Waypoint, 0, total+1)
	for i := 0; i < total; i++ {
		t := 1 - float64(i)/float64(total)
		radius := maxRadius * t
		angle := float64(i) * (2 * math.Pi / spiralPointsPerTurn)

		lngOffset := radius * math.Cos(angle) / metersPerDegree / math.Cos(center.Lat*math.Pi/180)
		latOffset := radius * math.Sin(angle) / metersPerDegree

		waypoints = append(waypoints, model.Waypoint{
			Lat:    center.Lat + latOffset,
			Lng:    geo.NormalizeLongitude(center.Lng + lngOffset),
			Alt:    altitude,
			Action: model.ActionPhoto,
		})
	}

	waypoints = append(waypoints, model.Waypoint{
		Lat:      center.Lat,
		Lng:      center.Lng,
		Alt:      altitude,
		Action:   model.ActionHover,
		Duration: 3,
	})
	return waypoints
}
