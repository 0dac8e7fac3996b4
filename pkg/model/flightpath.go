package model

// WaypointAction describes what the drone does at a waypoint.
type WaypointAction string

const (
	ActionFly   WaypointAction = "fly"
	ActionHover WaypointAction = "hover"
	ActionPhoto WaypointAction = "photo"
	ActionVideo WaypointAction = "video"
)

// Waypoint is a single position directive. Longitudes produced by the
// planner are always in [-180, 180].
type Waypoint struct {
	Lat      float64        `json:"lat"`
	Lng      float64        `json:"lng"`
	Alt      float64        `json:"alt"`
	Action   WaypointAction `json:"action"`
	Duration float64        `json:"duration"` // seconds at waypoint
}

// PatternType selects a coverage pattern for path planning.
type PatternType string

const (
	PatternWaypoint   PatternType = "waypoint"
	PatternCrosshatch PatternType = "crosshatch"
	PatternPerimeter  PatternType = "perimeter"
	PatternSpiral     PatternType = "spiral"
)

// ValidPattern reports whether p is a known pattern type.
func ValidPattern(p PatternType) bool {
	switch p {
	case PatternWaypoint, PatternCrosshatch, PatternPerimeter, PatternSpiral:
		return true
	}
	return false
}

// FlightPath is an ordered waypoint sequence, immutable after planning.
// Travel waypoints (base to survey start) may be prefixed and return
// waypoints (back to base) suffixed; both use ActionFly and are identified
// by the prefix/suffix rule below.
type FlightPath struct {
	Pattern           PatternType `json:"pattern"`
	Waypoints         []Waypoint  `json:"waypoints"`
	TotalDistance     float64     `json:"totalDistance"`     // meters
	EstimatedDuration float64     `json:"estimatedDuration"` // seconds
}

// IsEmpty reports whether the path has no waypoints.
func (fp *FlightPath) IsEmpty() bool {
	return fp == nil || len(fp.Waypoints) == 0
}

// TravelPrefixCount returns the number of contiguous fly-action waypoints
// at the head of the path: the travel segment from base to survey start.
func (fp *FlightPath) TravelPrefixCount() int {
	if fp == nil {
		return 0
	}
	n := 0
	for _, wp := range fp.Waypoints {
		if wp.Action != ActionFly {
			break
		}
		n++
	}
	return n
}

// ReturnSuffixStart returns the index of the first return waypoint: the
// waypoint after the last non-fly waypoint. When the path contains no
// non-fly waypoint there is no return segment and len(Waypoints) is
// returned.
func (fp *FlightPath) ReturnSuffixStart() int {
	if fp == nil {
		return 0
	}
	for i := len(fp.Waypoints) - 1; i >= 0; i-- {
		if fp.Waypoints[i].Action != ActionFly {
			return i + 1
		}
	}
	return len(fp.Waypoints)
}
