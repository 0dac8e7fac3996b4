package planner

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
)

func square() model.Polygon {
	return model.Polygon{Polygon: orb.Polygon{orb.Ring{
		{72.87, 19.07}, {72.88, 19.07}, {72.88, 19.08}, {72.87, 19.08}, {72.87, 19.07},
	}}}
}

func assertLngRange(t *testing.T, waypoints []model.Waypoint) {
	t.Helper()
	for i, wp := range waypoints {
		assert.LessOrEqual(t, wp.Lng, 180.0, "waypoint %d", i)
		assert.GreaterOrEqual(t, wp.Lng, -180.0, "waypoint %d", i)
	}
}

func TestPlanPerimeter(t *testing.T) {
	fp := Plan(square(), model.PatternPerimeter, 50, 70, 10)

	require.Len(t, fp.Waypoints, 5, "all ring vertices including closing duplicate")
	for _, wp := range fp.Waypoints {
		assert.Equal(t, model.ActionPhoto, wp.Action)
		assert.Equal(t, 50.0, wp.Alt)
	}
	assert.Greater(t, fp.TotalDistance, 0.0)
	assert.InDelta(t, fp.TotalDistance/10, fp.EstimatedDuration, 1e-9)
}

func TestPlanWaypoint(t *testing.T) {
	fp := Plan(square(), model.PatternWaypoint, 50, 70, 10)

	require.Len(t, fp.Waypoints, 4, "closing duplicate dropped")
	assert.Equal(t, model.ActionFly, fp.Waypoints[0].Action)
	for _, wp := range fp.Waypoints[1:] {
		assert.Equal(t, model.ActionPhoto, wp.Action)
	}
}

func TestPlanCrosshatch(t *testing.T) {
	fp := Plan(square(), model.PatternCrosshatch, 50, 70, 10)

	// swath 40m, overlap 70% -> 12m spacing; ~1.1km tall box -> capped at 50 lines.
	require.NotEmpty(t, fp.Waypoints)
	assert.LessOrEqual(t, len(fp.Waypoints), 2*maxScanLines)
	assertLngRange(t, fp.Waypoints)

	// Entry/exit pairs: even indices fly, odd photo.
	for i, wp := range fp.Waypoints {
		if i%2 == 0 {
			assert.Equal(t, model.ActionFly, wp.Action, "entry %d", i)
		} else {
			assert.Equal(t, model.ActionPhoto, wp.Action, "exit %d", i)
		}
	}

	// Boustrophedon: consecutive rows alternate direction.
	first := fp.Waypoints[1].Lng - fp.Waypoints[0].Lng
	second := fp.Waypoints[3].Lng - fp.Waypoints[2].Lng
	assert.Less(t, first*second, 0.0, "rows must alternate direction")
}

func TestCrosshatchMinSpacing(t *testing.T) {
	// Tiny swath at 5m altitude: spacing clamps to 10m.
	fp := Plan(square(), model.PatternCrosshatch, 5, 90, 10)
	assert.LessOrEqual(t, len(fp.Waypoints), 2*maxScanLines)
	assert.NotEmpty(t, fp.Waypoints)
}

func TestPlanSpiral(t *testing.T) {
	fp := Plan(square(), model.PatternSpiral, 50, 70, 10)

	require.Len(t, fp.Waypoints, spiralTurns*spiralPointsPerTurn+1)
	last := fp.Waypoints[len(fp.Waypoints)-1]
	assert.Equal(t, model.ActionHover, last.Action)
	assert.Equal(t, 3.0, last.Duration)

	center, _ := square().Centroid()
	assert.InDelta(t, center.Lat, last.Lat, 1e-9)
	assert.InDelta(t, center.Lng, last.Lng, 1e-9)

	// Radius decreases monotonically.
	prev := math.Inf(1)
	for _, wp := range fp.Waypoints[:len(fp.Waypoints)-1] {
		d := geo.Distance(center, geo.Point{Lat: wp.Lat, Lng: wp.Lng})
		assert.LessOrEqual(t, d, prev+1)
		prev = d
	}
}

func TestPlanDegeneratePolygon(t *testing.T) {
	line := model.Polygon{Polygon: orb.Polygon{orb.Ring{{0, 0}, {1, 1}, {0, 0}}}}
	for _, pattern := range []model.PatternType{
		model.PatternPerimeter, model.PatternWaypoint, model.PatternCrosshatch, model.PatternSpiral,
	} {
		fp := Plan(line, pattern, 50, 70, 10)
		assert.Empty(t, fp.Waypoints, string(pattern))
	}

	fp := Plan(model.Polygon{}, model.PatternCrosshatch, 50, 70, 10)
	assert.Empty(t, fp.Waypoints)
}

func TestPlanNormalizesLongitudes(t *testing.T) {
	p := model.Polygon{Polygon: orb.Polygon{orb.Ring{
		{190, 0}, {190.01, 0}, {190.01, 0.01}, {190, 0.01}, {190, 0},
	}}}
	fp := Plan(p, model.PatternPerimeter, 50, 70, 10)
	require.NotEmpty(t, fp.Waypoints)
	assertLngRange(t, fp.Waypoints)
}

func TestPlanTravelShortHop(t *testing.T) {
	start := geo.Point{Lat: 19.076, Lng: 72.877}
	end := geo.Point{Lat: 19.077, Lng: 72.878} // ~150m

	waypoints := PlanTravel(start, end, 50)
	require.Len(t, waypoints, 3, "takeoff, climb, arrival only below 500m")
	assert.Equal(t, takeoffAltitudeM, waypoints[0].Alt)
	assert.Equal(t, 50.0, waypoints[1].Alt)
	assert.Equal(t, end.Lat, waypoints[2].Lat)
	for _, wp := range waypoints {
		assert.Equal(t, model.ActionFly, wp.Action)
	}
}

func TestPlanTravelLongHop(t *testing.T) {
	start := geo.Point{Lat: 19.076, Lng: 72.877}
	end := geo.Point{Lat: 19.07, Lng: 72.87} // ~1km

	waypoints := PlanTravel(start, end, 50)
	assert.GreaterOrEqual(t, len(waypoints), 4, "interior waypoints above 500m")
	assert.LessOrEqual(t, len(waypoints), 3+maxInteriorPoints)
}

func TestPlanTravelAntimeridian(t *testing.T) {
	// Base east of the antimeridian, survey west of it: ~22km, not ~40000km.
	start := geo.Point{Lat: 0, Lng: 179.9}
	end := geo.Point{Lat: 0, Lng: -179.9}

	waypoints := PlanTravel(start, end, 50)
	assertLngRange(t, waypoints)
	assert.Less(t, PathDistance(waypoints), 50_000.0)

	// Interior points step east across the wrap: |lng| stays near 180.
	for _, wp := range waypoints[2 : len(waypoints)-1] {
		assert.Greater(t, math.Abs(wp.Lng), 179.8)
	}
}
