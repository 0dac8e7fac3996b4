// Package store abstracts persistence of missions, drones, bases,
// telemetry and handoff logs. Consumers should depend on the specific
// sub-interfaces when possible so tests can substitute in-memory
// implementations.
package store

import (
	"context"
	"errors"

	"skysurvey/pkg/model"
)

// ErrNotFound is returned when an entity id does not exist.
var ErrNotFound = errors.New("entity not found")

// MissionFilter narrows a mission query. Zero values match everything.
type MissionFilter struct {
	Status   model.MissionStatus
	SiteName string
	DroneID  string
}

// MissionStore handles mission persistence. Writes are atomic per row;
// single-writer semantics per mission are enforced by the executor that
// owns it.
type MissionStore interface {
	GetMission(ctx context.Context, id string) (*model.Mission, error)
	SaveMission(ctx context.Context, m *model.Mission) error
	DeleteMission(ctx context.Context, id string) error
	QueryMissions(ctx context.Context, f MissionFilter) ([]*model.Mission, error)
}

// DroneStore handles drone persistence.
type DroneStore interface {
	GetDrone(ctx context.Context, id string) (*model.Drone, error)
	SaveDrone(ctx context.Context, d *model.Drone) error
	// QueryDrones lists the whole fleet sorted by drone id.
	QueryDrones(ctx context.Context) ([]*model.Drone, error)
	// QueryAvailableDrones lists available drones sorted by battery
	// descending. baseID and minBattery are optional narrows; pass ""
	// and 0 to disable them.
	QueryAvailableDrones(ctx context.Context, baseID string, minBattery float64) ([]*model.Drone, error)
}

// BaseStore handles base persistence.
type BaseStore interface {
	GetBase(ctx context.Context, id string) (*model.Base, error)
	SaveBase(ctx context.Context, b *model.Base) error
	// QueryBases lists all bases sorted by base id.
	QueryBases(ctx context.Context) ([]*model.Base, error)
	QueryActiveBases(ctx context.Context) ([]*model.Base, error)
}

// TelemetryStore handles the append-only telemetry time series.
type TelemetryStore interface {
	AppendTelemetry(ctx context.Context, p *model.TelemetryPoint) error
	// QueryTelemetry returns up to limit points for a mission, newest first.
	QueryTelemetry(ctx context.Context, missionID string, limit int) ([]*model.TelemetryPoint, error)
}

// HandoffStore handles the append-only handoff audit log.
type HandoffStore interface {
	AppendHandoffLog(ctx context.Context, e *model.HandoffLog) error
	// QueryHandoffHistory returns a mission's entries in ascending time order.
	QueryHandoffHistory(ctx context.Context, missionID string) ([]*model.HandoffLog, error)
}

// Store composes all sub-interfaces for full repository access.
type Store interface {
	MissionStore
	DroneStore
	BaseStore
	TelemetryStore
	HandoffStore

	// Close closes the store connection.
	Close() error
}
