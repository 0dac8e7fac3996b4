package planner

import (
	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
)

const (
	takeoffAltitudeM   = 10.0
	travelHopM         = 200.0
	travelHopMinDistM  = 500.0
	maxInteriorPoints  = 10
)

// PlanTravel builds a fly-only path from start to end: a low-altitude
// takeoff waypoint, a climb to cruise altitude, interior waypoints spaced
// roughly 200 m for hops longer than 500 m, and the arrival point. All
// interpolation takes the shortest arc across the antimeridian.
func PlanTravel(start, end geo.Point, altitude float64) []model.Waypoint {
	waypoints := []model.Waypoint{
		{Lat: start.Lat, Lng: geo.NormalizeLongitude(start.Lng), Alt: takeoffAltitudeM, Action: model.ActionFly},
		{Lat: start.Lat, Lng: geo.NormalizeLongitude(start.Lng), Alt: altitude, Action: model.ActionFly},
	}

	if d := geo.Distance(start, end); d > travelHopMinDistM {
		n := int(d / travelHopM)
		if n > maxInteriorPoints {
			n = maxInteriorPoints
		}
		for i := 1; i <= n; i++ {
			p := geo.Interpolate(start, end, float64(i)/float64(n+1))
			waypoints = append(waypoints, model.Waypoint{
				Lat: p.Lat, Lng: p.Lng, Alt: altitude, Action: model.ActionFly,
			})
		}
	}

	waypoints = append(waypoints, model.Waypoint{
		Lat: end.Lat, Lng: geo.NormalizeLongitude(end.Lng), Alt: altitude, Action: model.ActionFly,
	})
	return waypoints
}
