package model

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squarePolygon() Polygon {
	return Polygon{orb.Polygon{orb.Ring{
		{72.87, 19.07}, {72.88, 19.07}, {72.88, 19.08}, {72.87, 19.08}, {72.87, 19.07},
	}}}
}

func TestFlightPathSegments(t *testing.T) {
	fp := &FlightPath{
		Pattern: PatternCrosshatch,
		Waypoints: []Waypoint{
			{Action: ActionFly},   // travel
			{Action: ActionFly},   // travel
			{Action: ActionFly},   // crosshatch entry, absorbed into prefix
			{Action: ActionPhoto}, // survey
			{Action: ActionFly},
			{Action: ActionPhoto}, // last non-fly
			{Action: ActionFly},   // return
			{Action: ActionFly},   // return
		},
	}

	assert.Equal(t, 3, fp.TravelPrefixCount())
	assert.Equal(t, 6, fp.ReturnSuffixStart())
}

func TestFlightPathSegmentsAllFly(t *testing.T) {
	fp := &FlightPath{Waypoints: []Waypoint{{Action: ActionFly}, {Action: ActionFly}}}
	assert.Equal(t, 2, fp.TravelPrefixCount())
	assert.Equal(t, 2, fp.ReturnSuffixStart())
}

func TestPolygonCentroid(t *testing.T) {
	c, ok := squarePolygon().Centroid()
	require.True(t, ok)
	// Mean over 5 ring vertices; the duplicated closing vertex pulls the
	// centroid slightly toward the first corner.
	assert.InDelta(t, 19.074, c.Lat, 0.001)
	assert.InDelta(t, 72.874, c.Lng, 0.001)

	_, ok = Polygon{}.Centroid()
	assert.False(t, ok)
}

func TestPolygonNormalizeLongitudes(t *testing.T) {
	p := Polygon{orb.Polygon{orb.Ring{{190, 0}, {-190, 1}, {170, 2}}}}
	p.NormalizeLongitudes()

	ring := p.OuterRing()
	assert.Equal(t, -170.0, ring[0][0])
	assert.Equal(t, 170.0, ring[1][0])
	assert.Equal(t, 170.0, ring[2][0])
}

func TestPolygonJSONRoundTrip(t *testing.T) {
	p := squarePolygon()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"Polygon"`)

	var got Polygon
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p.Polygon, got.Polygon)

	// Non-polygon geometry is rejected.
	err = json.Unmarshal([]byte(`{"type":"Point","coordinates":[1,2]}`), &got)
	assert.Error(t, err)
}

func TestPositionJSON(t *testing.T) {
	pos := Position{Lng: 72.87, Lat: 19.07, Alt: 50}
	data, err := json.Marshal(pos)
	require.NoError(t, err)

	var got Position
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, pos, got)

	// 2-coordinate points parse with zero altitude.
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":[10,20]}`), &got))
	assert.Equal(t, Position{Lng: 10, Lat: 20}, got)
}
