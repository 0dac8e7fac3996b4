// Package sim moves a drone along a planned flight path in simulated
// time. The simulator is pure state plus arithmetic: it never touches
// the store or the clock, callers feed it dt per tick.
package sim

import (
	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
)

// BatteryDrainRate is the battery cost of flight, percent per minute.
const BatteryDrainRate = 2.0

// WaypointThreshold is the snap distance in meters. A tick that would
// overshoot the target snaps to it instead.
const WaypointThreshold = 2.0

// Result is the outcome of one Advance call.
type Result struct {
	Complete      bool
	Position      geo.Point
	Altitude      float64
	Heading       float64
	Speed         float64
	Battery       float64
	WaypointIndex int
	Progress      float64
	Phase         model.MissionPhase
}

// Simulator advances a single drone along a flight path. It is owned by
// exactly one mission executor and is not safe for concurrent use.
type Simulator struct {
	waypoints []model.Waypoint
	speed     float64

	currentIndex           int
	position               geo.Point
	altitude               float64
	heading                float64
	battery                float64
	distanceTraveled       float64
	surveyDistanceTraveled float64

	travelPrefixCount int
	returnSuffixStart int
	travelDistance    float64
	surveyDistance    float64
	returnDistance    float64
}

// New creates a simulator positioned at start, heading for the first
// waypoint of the path.
func New(fp *model.FlightPath, start geo.Point, altitude, speed, battery float64) *Simulator {
	s := &Simulator{
		waypoints: fp.Waypoints,
		speed:     speed,
		position:  geo.Point{Lat: start.Lat, Lng: geo.NormalizeLongitude(start.Lng)},
		altitude:  altitude,
		battery:   battery,

		travelPrefixCount: fp.TravelPrefixCount(),
		returnSuffixStart: fp.ReturnSuffixStart(),
	}
	s.cacheDistances()
	return s
}

// Resume recreates a simulator from persisted mission state. The survey
// distance already covered is reconstructed from the stored progress so
// the progress series continues without a jump.
func Resume(fp *model.FlightPath, start geo.Point, altitude, speed, battery float64,
	currentIndex int, progress float64) *Simulator {

	s := New(fp, start, altitude, speed, battery)
	s.currentIndex = currentIndex
	s.surveyDistanceTraveled = progress / 100 * s.surveyDistance
	s.distanceTraveled = s.travelDistance + s.surveyDistanceTraveled
	return s
}

func (s *Simulator) cacheDistances() {
	for i := 1; i < len(s.waypoints); i++ {
		a := geo.Point{Lat: s.waypoints[i-1].Lat, Lng: s.waypoints[i-1].Lng}
		b := geo.Point{Lat: s.waypoints[i].Lat, Lng: s.waypoints[i].Lng}
		d := geo.Distance(a, b)
		switch {
		case i < s.travelPrefixCount:
			s.travelDistance += d
		case i >= s.returnSuffixStart:
			s.returnDistance += d
		default:
			s.surveyDistance += d
		}
	}
}

// Position returns the current simulated location.
func (s *Simulator) Position() geo.Point { return s.position }

// Battery returns the current battery level.
func (s *Simulator) Battery() float64 { return s.battery }

// WaypointIndex returns the index of the waypoint currently targeted.
func (s *Simulator) WaypointIndex() int { return s.currentIndex }

// SetBattery rebinds the simulator to a new power source. Used at
// handoff: position, waypoint index and distances carry over, only the
// battery changes.
func (s *Simulator) SetBattery(battery float64) { s.battery = battery }

// Phase derives the mission phase from the current waypoint index.
func (s *Simulator) Phase() model.MissionPhase {
	switch {
	case s.currentIndex >= len(s.waypoints):
		return model.PhaseCompleted
	case s.currentIndex < s.travelPrefixCount:
		return model.PhaseTraveling
	case s.currentIndex >= s.returnSuffixStart:
		return model.PhaseReturning
	default:
		return model.PhaseSurveying
	}
}

// Progress is percent of survey distance covered, clamped to [0, 100].
// Travel and return legs do not count.
func (s *Simulator) Progress() float64 {
	if s.surveyDistance <= 0 {
		if s.currentIndex >= len(s.waypoints) {
			return 100
		}
		return 0
	}
	p := 100 * s.surveyDistanceTraveled / s.surveyDistance
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Advance moves the drone dt seconds along the path and returns the new
// state. Once the last waypoint is reached every further call reports
// Complete without moving.
func (s *Simulator) Advance(dt float64) Result {
	if s.currentIndex >= len(s.waypoints) {
		return s.result(true)
	}

	target := s.waypoints[s.currentIndex]
	targetPt := geo.Point{Lat: target.Lat, Lng: target.Lng}
	d := geo.Distance(s.position, targetPt)
	step := s.speed * dt
	surveying := s.Phase() == model.PhaseSurveying

	if d <= step || d <= WaypointThreshold {
		s.position = targetPt
		s.altitude = target.Alt
		s.distanceTraveled += d
		if surveying {
			s.surveyDistanceTraveled += d
		}
		s.currentIndex++
		if s.currentIndex >= len(s.waypoints) {
			return s.result(true)
		}
	} else {
		f := step / d
		s.position = geo.Interpolate(s.position, targetPt, f)
		s.altitude += (target.Alt - s.altitude) * f
		s.distanceTraveled += step
		if surveying {
			s.surveyDistanceTraveled += step
		}
	}

	next := s.waypoints[s.currentIndex]
	s.heading = geo.Bearing(s.position, geo.Point{Lat: next.Lat, Lng: next.Lng})
	s.battery = max(0, s.battery-BatteryDrainRate*dt/60)

	return s.result(false)
}

func (s *Simulator) result(complete bool) Result {
	return Result{
		Complete:      complete,
		Position:      s.position,
		Altitude:      s.altitude,
		Heading:       s.heading,
		Speed:         s.speed,
		Battery:       s.battery,
		WaypointIndex: s.currentIndex,
		Progress:      s.Progress(),
		Phase:         s.Phase(),
	}
}
