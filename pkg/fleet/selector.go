// Package fleet assigns drones to missions and manages recharging.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

// ErrNoDroneAvailable is returned when no drone can fly a mission.
var ErrNoDroneAvailable = errors.New("no drone available")

// Selector picks drones for missions.
type Selector struct {
	store  store.Store
	logger *slog.Logger
}

// NewSelector creates a selector over the given store.
func NewSelector(st store.Store, logger *slog.Logger) *Selector {
	return &Selector{store: st, logger: logger}
}

// AutoAssign picks the best available drone for a mission: highest
// battery at the active base nearest the coverage centroid, falling back
// to the highest-battery available drone anywhere. The chosen drone is
// returned unmodified; the caller owns the status transition.
func (s *Selector) AutoAssign(ctx context.Context, m *model.Mission) (*model.Drone, error) {
	centroid, ok := m.CoverageArea.Centroid()
	if ok {
		bases, err := s.store.QueryActiveBases(ctx)
		if err != nil {
			return nil, fmt.Errorf("query active bases: %w", err)
		}
		if base := NewBaseIndex(bases).Nearest(centroid); base != nil {
			drones, err := s.store.QueryAvailableDrones(ctx, base.BaseID, 0)
			if err != nil {
				return nil, fmt.Errorf("query drones at base %s: %w", base.BaseID, err)
			}
			if len(drones) > 0 {
				s.logger.Info("auto-assigned drone from nearest base",
					"mission", m.MissionID, "base", base.BaseID, "drone", drones[0].DroneID,
					"battery", drones[0].BatteryLevel)
				return drones[0], nil
			}
		}
	}

	// Global fallback: any available drone, highest battery first.
	drones, err := s.store.QueryAvailableDrones(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("query available drones: %w", err)
	}
	if len(drones) == 0 {
		return nil, fmt.Errorf("mission %s: %w", m.MissionID, ErrNoDroneAvailable)
	}
	s.logger.Info("auto-assigned drone from global pool",
		"mission", m.MissionID, "drone", drones[0].DroneID, "battery", drones[0].BatteryLevel)
	return drones[0], nil
}

// ReplacementFor picks a replacement for a low-battery drone: available
// drones at the mission's origin base first, then anywhere, always
// excluding the outgoing drone and requiring at least minBattery.
func (s *Selector) ReplacementFor(ctx context.Context, m *model.Mission, outgoingID string, minBattery float64) (*model.Drone, error) {
	if m.OriginBaseID != "" {
		drones, err := s.store.QueryAvailableDrones(ctx, m.OriginBaseID, minBattery)
		if err != nil {
			return nil, fmt.Errorf("query drones at origin base: %w", err)
		}
		for _, d := range drones {
			if d.DroneID != outgoingID {
				return d, nil
			}
		}
	}

	drones, err := s.store.QueryAvailableDrones(ctx, "", minBattery)
	if err != nil {
		return nil, fmt.Errorf("query available drones: %w", err)
	}
	for _, d := range drones {
		if d.DroneID != outgoingID {
			return d, nil
		}
	}
	return nil, fmt.Errorf("replacement for %s: %w", outgoingID, ErrNoDroneAvailable)
}
