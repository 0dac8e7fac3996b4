package model

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"skysurvey/pkg/geo"
)

// Polygon is a GeoJSON Polygon. Only the outer ring is considered by the
// planner; longitudes are normalized to [-180, 180] at the boundary.
type Polygon struct {
	orb.Polygon
}

// MarshalJSON encodes the polygon as a GeoJSON geometry.
func (p Polygon) MarshalJSON() ([]byte, error) {
	return geojson.NewGeometry(p.Polygon).MarshalJSON()
}

// UnmarshalJSON decodes a GeoJSON geometry, rejecting non-polygons.
func (p *Polygon) UnmarshalJSON(data []byte) error {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return fmt.Errorf("expected Polygon geometry, got %s", g.Type)
	}
	p.Polygon = poly
	return nil
}

// IsZero reports whether the polygon has no rings.
func (p Polygon) IsZero() bool {
	return len(p.Polygon) == 0
}

// OuterRing returns the outer ring, or nil if absent.
func (p Polygon) OuterRing() orb.Ring {
	if len(p.Polygon) == 0 {
		return nil
	}
	return p.Polygon[0]
}

// NormalizeLongitudes maps every coordinate's longitude to [-180, 180]
// in place.
func (p Polygon) NormalizeLongitudes() {
	for _, ring := range p.Polygon {
		for i, pt := range ring {
			ring[i] = orb.Point{geo.NormalizeLongitude(pt[0]), pt[1]}
		}
	}
}

// Centroid returns the arithmetic mean of the outer-ring vertices.
func (p Polygon) Centroid() (geo.Point, bool) {
	ring := p.OuterRing()
	if len(ring) == 0 {
		return geo.Point{}, false
	}
	var lat, lng float64
	for _, pt := range ring {
		lng += pt[0]
		lat += pt[1]
	}
	n := float64(len(ring))
	return geo.Point{Lat: lat / n, Lng: lng / n}, true
}

// Position is a drone location: longitude, latitude and altitude (m AGL).
// It marshals as a GeoJSON Point with a third coordinate.
type Position struct {
	Lng float64
	Lat float64
	Alt float64
}

// MarshalJSON encodes the position as a GeoJSON Point.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string     `json:"type"`
		Coordinates [3]float64 `json:"coordinates"`
	}{Type: "Point", Coordinates: [3]float64{p.Lng, p.Lat, p.Alt}})
}

// UnmarshalJSON accepts GeoJSON Points with 2 or 3 coordinates.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "Point" {
		return fmt.Errorf("expected Point geometry, got %s", raw.Type)
	}
	if len(raw.Coordinates) < 2 {
		return fmt.Errorf("point needs at least 2 coordinates, got %d", len(raw.Coordinates))
	}
	p.Lng = raw.Coordinates[0]
	p.Lat = raw.Coordinates[1]
	if len(raw.Coordinates) > 2 {
		p.Alt = raw.Coordinates[2]
	}
	return nil
}

// GeoPoint returns the 2D geographic point of the position.
func (p Position) GeoPoint() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}
