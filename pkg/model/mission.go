package model

import "time"

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

const (
	MissionDraft      MissionStatus = "draft"
	MissionScheduled  MissionStatus = "scheduled"
	MissionInProgress MissionStatus = "in_progress"
	MissionPaused     MissionStatus = "paused"
	MissionCompleted  MissionStatus = "completed"
	MissionAborted    MissionStatus = "aborted"
	MissionFailed     MissionStatus = "failed"
)

// MissionPhase is the segment of the flight the mission is currently in.
type MissionPhase string

const (
	PhaseIdle      MissionPhase = "idle"
	PhaseTraveling MissionPhase = "traveling"
	PhaseSurveying MissionPhase = "surveying"
	PhaseReturning MissionPhase = "returning"
	PhaseCompleted MissionPhase = "completed"
)

// Mission is a survey mission over a coverage polygon.
//
// Invariants: progress is measured against survey distance only, not
// travel+survey; at any instant exactly one drone owns the mission, and a
// non-empty PendingReplacementDroneID means a replacement is in flight but
// not yet the owner.
type Mission struct {
	MissionID    string  `json:"missionId"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	SiteName     string  `json:"siteName,omitempty"`
	SurveyType   string  `json:"surveyType"`
	CoverageArea Polygon `json:"coverageArea"`

	FlightPath *FlightPath `json:"flightPath,omitempty"`
	Altitude   float64     `json:"altitude"` // meters AGL
	Speed      float64     `json:"speed"`    // m/s
	Overlap    float64     `json:"overlap"`  // percent, 0-90

	Status               MissionStatus `json:"status"`
	Phase                MissionPhase  `json:"phase"`
	Progress             float64       `json:"progress"` // percent of survey distance
	CurrentWaypointIndex int           `json:"currentWaypointIndex"`

	AssignedDroneID           string    `json:"assignedDroneId,omitempty"`
	OriginBaseID              string    `json:"originBaseId,omitempty"`
	PendingReplacementDroneID string    `json:"pendingReplacementDroneId,omitempty"`
	HandoffLocation           *Position `json:"handoffLocation,omitempty"`
	AbortReason               string    `json:"abortReason,omitempty"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// TelemetryPoint is one append-only sample of the telemetry time series.
type TelemetryPoint struct {
	MissionID     string       `json:"missionId"`
	DroneID       string       `json:"droneId"`
	Timestamp     time.Time    `json:"ts"`
	Position      Position     `json:"position"`
	AltitudeAGL   float64      `json:"altitudeAGL"`
	Heading       float64      `json:"heading"`
	Speed         float64      `json:"speed"`
	Battery       float64      `json:"battery"`
	WaypointIndex int          `json:"waypointIndex"`
	Progress      float64      `json:"progress"`
	Phase         MissionPhase `json:"phase"`
}

// HandoffKind classifies a handoff log entry.
type HandoffKind string

const (
	HandoffStart                 HandoffKind = "start"
	HandoffReplacementDispatched HandoffKind = "replacement_dispatched"
	HandoffComplete              HandoffKind = "handoff_complete"
	HandoffReturnToBase          HandoffKind = "return_to_base"
	HandoffMissionAborted        HandoffKind = "mission_aborted"
	HandoffMissionComplete       HandoffKind = "complete"
)

// HandoffLog is an immutable audit record of a handoff lifecycle event.
type HandoffLog struct {
	MissionID        string      `json:"missionId"`
	Timestamp        time.Time   `json:"ts"`
	Kind             HandoffKind `json:"kind"`
	OutgoingDroneID  string      `json:"outgoingDroneId,omitempty"`
	OutgoingBattery  float64     `json:"outgoingBattery,omitempty"`
	IncomingDroneID  string      `json:"incomingDroneId,omitempty"`
	IncomingBattery  float64     `json:"incomingBattery,omitempty"`
	BaseID           string      `json:"baseId,omitempty"`
	WaypointIndex    int         `json:"waypointIndex"`
	Progress         float64     `json:"progress"`
	Reason           string      `json:"reason,omitempty"`
}
