// Package mission runs survey missions: the service is the operator
// surface, the executor drives one mission's simulated flight, and the
// coordinator manages mid-air battery handoffs.
package mission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skysurvey/pkg/model"
	"skysurvey/pkg/planner"
	"skysurvey/pkg/store"
)

// Service exposes mission control operations to the HTTP layer. Lifecycle
// transitions that need a running executor are delegated to the
// Supervisor.
type Service struct {
	store      store.Store
	supervisor *Supervisor
	logger     *slog.Logger
}

// NewService creates a mission service.
func NewService(st store.Store, sup *Supervisor, logger *slog.Logger) *Service {
	return &Service{store: st, supervisor: sup, logger: logger}
}

// CreateMission validates and persists a new draft mission.
func (s *Service) CreateMission(ctx context.Context, m *model.Mission) (*model.Mission, error) {
	if err := validate(m); err != nil {
		return nil, err
	}
	m.MissionID = model.NewMissionID()
	m.Status = model.MissionDraft
	m.Phase = model.PhaseIdle
	m.Progress = 0
	m.CurrentWaypointIndex = 0
	m.CreatedAt = time.Now().UTC()
	m.CoverageArea.NormalizeLongitudes()

	if err := s.store.SaveMission(ctx, m); err != nil {
		return nil, fmt.Errorf("save mission: %w", err)
	}
	s.logger.Info("mission created", "mission", m.MissionID, "name", m.Name, "pattern", m.SurveyType)
	return m, nil
}

// UpdateMission replaces a mission's editable fields. Rejected while the
// mission is executing.
func (s *Service) UpdateMission(ctx context.Context, m *model.Mission) (*model.Mission, error) {
	existing, err := s.store.GetMission(ctx, m.MissionID)
	if err != nil {
		return nil, err
	}
	if existing.Status == model.MissionInProgress {
		return nil, fmt.Errorf("mission %s is executing: %w", m.MissionID, ErrIllegalState)
	}
	if err := validate(m); err != nil {
		return nil, err
	}

	existing.Name = m.Name
	existing.Description = m.Description
	existing.SiteName = m.SiteName
	existing.SurveyType = m.SurveyType
	existing.CoverageArea = m.CoverageArea
	existing.CoverageArea.NormalizeLongitudes()
	existing.Altitude = m.Altitude
	existing.Speed = m.Speed
	existing.Overlap = m.Overlap
	// Parameters changed, the old plan no longer applies.
	existing.FlightPath = nil
	existing.CurrentWaypointIndex = 0
	existing.Progress = 0

	if err := s.store.SaveMission(ctx, existing); err != nil {
		return nil, fmt.Errorf("save mission: %w", err)
	}
	return existing, nil
}

// DeleteMission removes a mission. Rejected while executing.
func (s *Service) DeleteMission(ctx context.Context, id string) error {
	m, err := s.store.GetMission(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == model.MissionInProgress {
		return fmt.Errorf("mission %s is executing: %w", id, ErrIllegalState)
	}
	return s.store.DeleteMission(ctx, id)
}

// GetMission loads one mission.
func (s *Service) GetMission(ctx context.Context, id string) (*model.Mission, error) {
	return s.store.GetMission(ctx, id)
}

// ListMissions queries missions by filter.
func (s *Service) ListMissions(ctx context.Context, f store.MissionFilter) ([]*model.Mission, error) {
	return s.store.QueryMissions(ctx, f)
}

// GeneratePath plans (or re-plans) the survey waypoints for a mission
// from its coverage area. Travel and return legs are added at start time,
// not here, because they depend on the assigned drone's base.
func (s *Service) GeneratePath(ctx context.Context, id string) (*model.Mission, error) {
	m, err := s.store.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == model.MissionInProgress {
		return nil, fmt.Errorf("mission %s is executing: %w", id, ErrIllegalState)
	}

	fp := planner.Plan(m.CoverageArea, pattern(m), m.Altitude, m.Overlap, m.Speed)
	if fp.IsEmpty() {
		return nil, fmt.Errorf("coverage area yields no waypoints: %w", ErrValidation)
	}
	m.FlightPath = fp
	m.CurrentWaypointIndex = 0
	m.Progress = 0

	if err := s.store.SaveMission(ctx, m); err != nil {
		return nil, fmt.Errorf("save mission: %w", err)
	}
	s.logger.Info("flight path generated", "mission", id,
		"pattern", fp.Pattern, "waypoints", len(fp.Waypoints), "distance_m", fp.TotalDistance)
	return m, nil
}

// StartMission launches the mission's executor. Fails with ErrIllegalState
// unless the mission is draft or scheduled.
func (s *Service) StartMission(ctx context.Context, id string) (*model.Mission, error) {
	if err := s.supervisor.Start(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetMission(ctx, id)
}

// PauseMission suspends an executing mission. The executor idles at its
// next tick; no telemetry is emitted while paused. The transition runs
// through the coordinator so it cannot race a handoff write.
func (s *Service) PauseMission(ctx context.Context, id string) (*model.Mission, error) {
	m, err := s.supervisor.coordinator.Transition(ctx, id, model.MissionInProgress, model.MissionPaused)
	if err != nil {
		return nil, err
	}
	s.logger.Info("mission paused", "mission", id)
	return m, nil
}

// ResumeMission resumes a paused mission.
func (s *Service) ResumeMission(ctx context.Context, id string) (*model.Mission, error) {
	m, err := s.supervisor.coordinator.Transition(ctx, id, model.MissionPaused, model.MissionInProgress)
	if err != nil {
		return nil, err
	}
	s.logger.Info("mission resumed", "mission", id)
	return m, nil
}

// AbortMission aborts an executing or paused mission. The assigned drone
// is sent home.
func (s *Service) AbortMission(ctx context.Context, id, reason string) (*model.Mission, error) {
	if reason == "" {
		reason = "Aborted by operator"
	}
	return s.supervisor.coordinator.AbortMission(ctx, id, reason)
}

// QueryTelemetry returns a mission's most recent telemetry, newest first.
func (s *Service) QueryTelemetry(ctx context.Context, id string, limit int) ([]*model.TelemetryPoint, error) {
	if _, err := s.store.GetMission(ctx, id); err != nil {
		return nil, err
	}
	return s.store.QueryTelemetry(ctx, id, limit)
}

// QueryHandoffHistory returns a mission's handoff audit trail in time
// order.
func (s *Service) QueryHandoffHistory(ctx context.Context, id string) ([]*model.HandoffLog, error) {
	if _, err := s.store.GetMission(ctx, id); err != nil {
		return nil, err
	}
	return s.store.QueryHandoffHistory(ctx, id)
}

func validate(m *model.Mission) error {
	if m.Name == "" {
		return fmt.Errorf("mission name required: %w", ErrValidation)
	}
	if m.SurveyType != "" && !model.ValidPattern(model.PatternType(m.SurveyType)) {
		return fmt.Errorf("unknown survey pattern %q: %w", m.SurveyType, ErrValidation)
	}
	if m.Overlap < 0 || m.Overlap > 90 {
		return fmt.Errorf("overlap %.1f out of range [0, 90]: %w", m.Overlap, ErrValidation)
	}
	if m.Altitude < 0 || m.Speed < 0 {
		return fmt.Errorf("altitude and speed must be non-negative: %w", ErrValidation)
	}
	if m.Altitude == 0 {
		m.Altitude = 50
	}
	if m.Speed == 0 {
		m.Speed = 10
	}
	return nil
}

// pattern maps the requested survey type to a planner pattern,
// defaulting to crosshatch.
func pattern(m *model.Mission) model.PatternType {
	p := model.PatternType(m.SurveyType)
	if !model.ValidPattern(p) {
		return model.PatternCrosshatch
	}
	return p
}
