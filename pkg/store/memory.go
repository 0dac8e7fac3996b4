package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"skysurvey/pkg/model"
)

// MemoryStore is an in-memory Store used by tests and ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]*model.Mission
	drones   map[string]*model.Drone
	bases    map[string]*model.Base
	points   map[string][]*model.TelemetryPoint
	handoffs map[string][]*model.HandoffLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]*model.Mission),
		drones:   make(map[string]*model.Drone),
		bases:    make(map[string]*model.Base),
		points:   make(map[string][]*model.TelemetryPoint),
		handoffs: make(map[string][]*model.HandoffLog),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetMission(_ context.Context, id string) (*model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, fmt.Errorf("mission %q: %w", id, ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) SaveMission(_ context.Context, m *model.Mission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.missions[m.MissionID] = &cp
	return nil
}

func (s *MemoryStore) DeleteMission(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.missions[id]; !ok {
		return fmt.Errorf("mission %q: %w", id, ErrNotFound)
	}
	delete(s.missions, id)
	return nil
}

func (s *MemoryStore) QueryMissions(_ context.Context, f MissionFilter) ([]*model.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Mission
	for _, m := range s.missions {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.SiteName != "" && m.SiteName != f.SiteName {
			continue
		}
		if f.DroneID != "" && m.AssignedDroneID != f.DroneID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetDrone(_ context.Context, id string) (*model.Drone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drones[id]
	if !ok {
		return nil, fmt.Errorf("drone %q: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) SaveDrone(_ context.Context, d *model.Drone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.drones[d.DroneID] = &cp
	return nil
}

func (s *MemoryStore) QueryDrones(_ context.Context) ([]*model.Drone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Drone, 0, len(s.drones))
	for _, d := range s.drones {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DroneID < out[j].DroneID })
	return out, nil
}

func (s *MemoryStore) QueryAvailableDrones(_ context.Context, baseID string, minBattery float64) ([]*model.Drone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Drone
	for _, d := range s.drones {
		if d.Status != model.DroneAvailable {
			continue
		}
		if baseID != "" && d.BaseID != baseID {
			continue
		}
		if minBattery > 0 && d.BatteryLevel < minBattery {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].BatteryLevel > out[j].BatteryLevel
	})
	return out, nil
}

func (s *MemoryStore) GetBase(_ context.Context, id string) (*model.Base, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bases[id]
	if !ok {
		return nil, fmt.Errorf("base %q: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) SaveBase(_ context.Context, b *model.Base) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.bases[b.BaseID] = &cp
	return nil
}

func (s *MemoryStore) QueryBases(_ context.Context) ([]*model.Base, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Base, 0, len(s.bases))
	for _, b := range s.bases {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseID < out[j].BaseID })
	return out, nil
}

func (s *MemoryStore) QueryActiveBases(_ context.Context) ([]*model.Base, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Base
	for _, b := range s.bases {
		if b.Status != model.BaseActive {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BaseID < out[j].BaseID })
	return out, nil
}

func (s *MemoryStore) AppendTelemetry(_ context.Context, p *model.TelemetryPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.points[p.MissionID] = append(s.points[p.MissionID], &cp)
	return nil
}

func (s *MemoryStore) QueryTelemetry(_ context.Context, missionID string, limit int) ([]*model.TelemetryPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	all := s.points[missionID]
	var out []*model.TelemetryPoint
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) AppendHandoffLog(_ context.Context, e *model.HandoffLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.handoffs[e.MissionID] = append(s.handoffs[e.MissionID], &cp)
	return nil
}

func (s *MemoryStore) QueryHandoffHistory(_ context.Context, missionID string) ([]*model.HandoffLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.handoffs[missionID]
	out := make([]*model.HandoffLog, 0, len(all))
	for _, e := range all {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
