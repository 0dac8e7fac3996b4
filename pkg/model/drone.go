package model

import "time"

// DroneStatus is the lifecycle state of a drone. Transitions are driven
// exclusively by the mission executor, the handoff coordinator and the
// charging worker; maintenance and offline are set externally and never
// overridden by the core.
type DroneStatus string

const (
	DroneAvailable   DroneStatus = "available"
	DroneInFlight    DroneStatus = "in_flight"
	DroneDispatching DroneStatus = "dispatching"
	DroneReturning   DroneStatus = "returning"
	DroneCharging    DroneStatus = "charging"
	DroneMaintenance DroneStatus = "maintenance"
	DroneOffline     DroneStatus = "offline"
)

// Drone is a fleet vehicle. A drone is exclusively owned by at most one
// mission at a time via CurrentMissionID.
type Drone struct {
	DroneID          string      `json:"droneId"`
	Name             string      `json:"name"`
	Model            string      `json:"model"`
	BatteryLevel     float64     `json:"batteryLevel"` // percent, [0, 100]
	Location         Position    `json:"location"`
	HomeBase         Position    `json:"homeBase"`
	BaseID           string      `json:"baseId"`
	CurrentMissionID string      `json:"currentMissionId,omitempty"`
	Status           DroneStatus `json:"status"`
	MaxSpeed         float64     `json:"maxSpeed"` // m/s
	CreatedAt        time.Time   `json:"createdAt"`
}

// BaseStatus is the operational state of a base.
type BaseStatus string

const (
	BaseActive      BaseStatus = "active"
	BaseMaintenance BaseStatus = "maintenance"
	BaseOffline     BaseStatus = "offline"
)

// Base is a geographically fixed drone base.
type Base struct {
	BaseID              string     `json:"baseId"`
	Name                string     `json:"name"`
	Location            Position   `json:"location"`
	Status              BaseStatus `json:"status"`
	MaxDrones           int        `json:"maxDrones"`
	OperationalRadiusKm float64    `json:"operationalRadiusKm"`
	CreatedAt           time.Time  `json:"createdAt"`
}
