package mission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"skysurvey/pkg/bus"
	"skysurvey/pkg/fleet"
	"skysurvey/pkg/geo"
	"skysurvey/pkg/logging"
	"skysurvey/pkg/model"
	"skysurvey/pkg/planner"
	"skysurvey/pkg/sim"
	"skysurvey/pkg/store"
)

const telemetryRetries = 3

// Executor drives one mission: it owns the simulator, persists progress
// every tick, publishes events, and hands critical-battery situations to
// the coordinator. Exactly one executor runs per mission.
type Executor struct {
	missionID string
	store     store.Store
	bus       *bus.Bus
	selector  *fleet.Selector
	charger   *fleet.Charger
	coord     *Coordinator
	logger    *slog.Logger

	interval     time.Duration // wall-clock tick period
	dt           float64       // simulated seconds per tick
	retryBackoff time.Duration

	sim     *sim.Simulator
	droneID string
}

func newExecutor(missionID string, sup *Supervisor) *Executor {
	return &Executor{
		missionID:    missionID,
		store:        sup.store,
		bus:          sup.bus,
		selector:     sup.selector,
		charger:      sup.charger,
		coord:        sup.coordinator,
		logger:       sup.logger.With("mission", missionID),
		interval:     sup.interval,
		dt:           sup.dt,
		retryBackoff: sup.retryBackoff,
	}
}

// prepare performs the synchronous part of StartMission: preconditions,
// drone assignment, path planning, status transitions and the start log.
// Errors here surface to the caller before any loop runs.
func (e *Executor) prepare(ctx context.Context) error {
	m, err := e.store.GetMission(ctx, e.missionID)
	if err != nil {
		return err
	}
	if m.Status != model.MissionDraft && m.Status != model.MissionScheduled {
		return fmt.Errorf("mission %s is %s: %w", m.MissionID, m.Status, ErrIllegalState)
	}

	drone, err := e.ensureDrone(ctx, m)
	if err != nil {
		return err
	}
	if err := e.ensurePath(m, drone); err != nil {
		return err
	}

	now := time.Now().UTC()
	m.Status = model.MissionInProgress
	m.Phase = model.PhaseTraveling
	m.Progress = 0
	m.CurrentWaypointIndex = 0
	m.AssignedDroneID = drone.DroneID
	m.OriginBaseID = drone.BaseID
	m.StartedAt = &now
	if err := e.store.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("save mission at start: %w", err)
	}

	drone.Status = model.DroneInFlight
	drone.CurrentMissionID = m.MissionID
	if err := e.store.SaveDrone(ctx, drone); err != nil {
		return fmt.Errorf("save drone at start: %w", err)
	}

	if err := e.store.AppendHandoffLog(ctx, &model.HandoffLog{
		MissionID:       m.MissionID,
		Timestamp:       now,
		Kind:            model.HandoffStart,
		OutgoingDroneID: drone.DroneID,
		OutgoingBattery: drone.BatteryLevel,
		BaseID:          drone.BaseID,
	}); err != nil {
		e.logger.Error("start log append failed", "error", err)
	}

	e.droneID = drone.DroneID
	e.sim = sim.New(m.FlightPath, drone.Location.GeoPoint(), drone.Location.Alt, m.Speed, drone.BatteryLevel)
	e.logger.Info("mission started",
		"drone", drone.DroneID, "battery", drone.BatteryLevel,
		"waypoints", len(m.FlightPath.Waypoints), "distance_m", m.FlightPath.TotalDistance)
	return nil
}

// prepareResume rebuilds executor state for a mission found in_progress
// at process start. Survey progress picks up where the stored mission
// left off.
func (e *Executor) prepareResume(ctx context.Context) error {
	m, err := e.store.GetMission(ctx, e.missionID)
	if err != nil {
		return err
	}
	if m.Status != model.MissionInProgress && m.Status != model.MissionPaused {
		return fmt.Errorf("mission %s is %s, nothing to resume: %w", m.MissionID, m.Status, ErrIllegalState)
	}
	if m.FlightPath == nil || m.FlightPath.IsEmpty() || m.AssignedDroneID == "" {
		return fmt.Errorf("mission %s has no recoverable flight state: %w", m.MissionID, ErrValidation)
	}

	drone, err := e.store.GetDrone(ctx, m.AssignedDroneID)
	if err != nil {
		return fmt.Errorf("load assigned drone: %w", err)
	}

	e.droneID = drone.DroneID
	e.sim = sim.Resume(m.FlightPath, drone.Location.GeoPoint(), drone.Location.Alt,
		m.Speed, drone.BatteryLevel, m.CurrentWaypointIndex, m.Progress)
	e.logger.Info("mission resumed from persisted state",
		"drone", drone.DroneID, "waypoint", m.CurrentWaypointIndex, "progress", m.Progress)
	return nil
}

func (e *Executor) ensureDrone(ctx context.Context, m *model.Mission) (*model.Drone, error) {
	if m.AssignedDroneID != "" {
		d, err := e.store.GetDrone(ctx, m.AssignedDroneID)
		if err == nil && d.Status == model.DroneAvailable {
			return d, nil
		}
	}
	d, err := e.selector.AutoAssign(ctx, m)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ensurePath plans the survey body if absent, then wraps it with the
// travel leg from the drone's base and the return leg back to it.
func (e *Executor) ensurePath(m *model.Mission, drone *model.Drone) error {
	fp := m.FlightPath
	if fp == nil || fp.IsEmpty() {
		fp = planner.Plan(m.CoverageArea, pattern(m), m.Altitude, m.Overlap, m.Speed)
		if fp.IsEmpty() {
			return fmt.Errorf("coverage area yields no waypoints: %w", ErrValidation)
		}
	}

	base := geo.Point{Lat: drone.HomeBase.Lat, Lng: drone.HomeBase.Lng}
	first := geo.Point{Lat: fp.Waypoints[0].Lat, Lng: fp.Waypoints[0].Lng}
	last := geo.Point{Lat: fp.Waypoints[len(fp.Waypoints)-1].Lat, Lng: fp.Waypoints[len(fp.Waypoints)-1].Lng}

	travel := planner.PlanTravel(base, first, m.Altitude)
	ret := planner.PlanTravel(last, base, m.Altitude)

	waypoints := make([]model.Waypoint, 0, len(travel)+len(fp.Waypoints)+len(ret))
	waypoints = append(waypoints, travel...)
	waypoints = append(waypoints, fp.Waypoints...)
	waypoints = append(waypoints, ret...)

	full := &model.FlightPath{Pattern: fp.Pattern, Waypoints: waypoints}
	full.TotalDistance = planner.PathDistance(waypoints)
	if m.Speed > 0 {
		full.EstimatedDuration = full.TotalDistance / m.Speed
	}
	m.FlightPath = full
	return nil
}

// run is the tick loop. It exits when the mission leaves in_progress,
// when the flight completes, or when ctx is cancelled.
func (e *Executor) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	lastPhase := model.PhaseTraveling
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m, err := e.store.GetMission(ctx, e.missionID)
		if err != nil {
			e.fail(ctx, fmt.Errorf("reload mission: %w", err))
			return
		}
		switch m.Status {
		case model.MissionPaused:
			continue
		case model.MissionInProgress:
		default:
			e.logger.Info("executor exiting", "status", m.Status)
			return
		}

		// The replacement flight may have completed the handoff between
		// ticks; rebind to the new owner before advancing.
		if m.AssignedDroneID != "" && m.AssignedDroneID != e.droneID {
			if d, err := e.store.GetDrone(ctx, m.AssignedDroneID); err == nil {
				e.logger.Info("rebinding to replacement drone",
					"from", e.droneID, "to", d.DroneID, "battery", d.BatteryLevel)
				e.droneID = d.DroneID
				e.sim.SetBattery(d.BatteryLevel)
			}
		}

		r := e.sim.Advance(e.dt)
		logging.Trace(e.logger, "tick",
			"waypoint", r.WaypointIndex, "progress", r.Progress,
			"battery", r.Battery, "phase", r.Phase)

		// Progress goes through the coordinator, which re-reads the row:
		// a handoff or status change landing since the reload above must
		// not be overwritten with this loop's stale copy.
		m, err = e.coord.RecordProgress(ctx, e.missionID, r.Progress, r.WaypointIndex, r.Phase)
		if err != nil {
			e.fail(ctx, fmt.Errorf("persist progress: %w", err))
			return
		}
		if m.Status != model.MissionInProgress {
			// Paused or terminated mid-tick; the next iteration acts on
			// the new status.
			continue
		}
		if r.Phase != lastPhase {
			e.bus.Publish(bus.PhaseChangeEvent(e.missionID, lastPhase, r.Phase, time.Now().UTC()))
			e.logger.Info("phase change", "from", lastPhase, "to", r.Phase)
			lastPhase = r.Phase
		}

		point := &model.TelemetryPoint{
			MissionID:     e.missionID,
			DroneID:       e.droneID,
			Timestamp:     time.Now().UTC(),
			Position:      model.Position{Lng: r.Position.Lng, Lat: r.Position.Lat, Alt: r.Altitude},
			AltitudeAGL:   r.Altitude,
			Heading:       r.Heading,
			Speed:         r.Speed,
			Battery:       r.Battery,
			WaypointIndex: r.WaypointIndex,
			Progress:      r.Progress,
			Phase:         r.Phase,
		}
		e.appendTelemetryWithRetry(ctx, point)
		e.updateDrone(ctx, r)
		e.bus.Publish(bus.TelemetryEvent(point))

		if m.PendingReplacementDroneID != "" {
			e.checkRendezvous(ctx, m)
		}
		if r.Battery <= CriticalBattery && !r.Complete {
			e.checkCriticalBattery(ctx, r)
		}
		if r.Complete {
			e.complete(ctx)
			return
		}
	}
}

// appendTelemetryWithRetry retries transient store errors; a telemetry
// point that still fails is dropped so the tick keeps going.
func (e *Executor) appendTelemetryWithRetry(ctx context.Context, p *model.TelemetryPoint) {
	var err error
	for attempt := 0; attempt < telemetryRetries; attempt++ {
		if err = e.store.AppendTelemetry(ctx, p); err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.retryBackoff):
		}
	}
	e.logger.Warn("telemetry dropped after retries", "error", err)
}

// updateDrone mirrors the simulator state onto the drone row,
// best-effort.
func (e *Executor) updateDrone(ctx context.Context, r sim.Result) {
	d, err := e.store.GetDrone(ctx, e.droneID)
	if err != nil {
		e.logger.Warn("drone reload failed", "drone", e.droneID, "error", err)
		return
	}
	d.Location = model.Position{Lng: r.Position.Lng, Lat: r.Position.Lat, Alt: r.Altitude}
	d.BatteryLevel = r.Battery
	if err := e.store.SaveDrone(ctx, d); err != nil {
		e.logger.Warn("drone update failed", "drone", e.droneID, "error", err)
	}
}

// checkRendezvous completes the handoff once the replacement is within
// RendezvousRadius of the simulated drone. The replacement flight runs
// the same check; Complete is idempotent between them.
func (e *Executor) checkRendezvous(ctx context.Context, m *model.Mission) {
	replacement, err := e.store.GetDrone(ctx, m.PendingReplacementDroneID)
	if err != nil {
		e.logger.Warn("replacement reload failed", "drone", m.PendingReplacementDroneID, "error", err)
		return
	}
	if geo.Distance(e.sim.Position(), replacement.Location.GeoPoint()) > RendezvousRadius {
		return
	}

	incoming, err := e.coord.Complete(ctx, e.missionID, replacement.DroneID)
	if err != nil {
		e.logger.Error("handoff completion failed", "error", err)
		return
	}
	if incoming != nil {
		e.droneID = incoming.DroneID
		e.sim.SetBattery(incoming.BatteryLevel)
	}
}

func (e *Executor) checkCriticalBattery(ctx context.Context, r sim.Result) {
	outgoing, err := e.store.GetDrone(ctx, e.droneID)
	if err != nil {
		e.logger.Warn("drone reload failed during critical check", "error", err)
		return
	}
	if err := e.coord.TriggerReplacement(ctx, e.missionID, outgoing); err != nil {
		e.logger.Error("replacement trigger failed", "error", err)
	}
}

// complete finishes the mission: terminal status, drone docked on the
// charger, audit entry, completion event.
func (e *Executor) complete(ctx context.Context) {
	e.coord.mu.Lock()
	m, err := e.store.GetMission(ctx, e.missionID)
	if err != nil {
		e.coord.mu.Unlock()
		e.fail(ctx, fmt.Errorf("reload at completion: %w", err))
		return
	}
	if m.Status != model.MissionInProgress {
		// Already terminal, or paused on the final tick.
		e.coord.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	m.Status = model.MissionCompleted
	m.Phase = model.PhaseCompleted
	m.Progress = 100
	m.CompletedAt = &now
	if err := e.store.SaveMission(ctx, m); err != nil {
		e.coord.mu.Unlock()
		e.fail(ctx, fmt.Errorf("save completed mission: %w", err))
		return
	}
	e.coord.mu.Unlock()

	if d, err := e.store.GetDrone(ctx, e.droneID); err == nil {
		d.Status = model.DroneCharging
		d.CurrentMissionID = ""
		d.Location = model.Position{Lng: d.HomeBase.Lng, Lat: d.HomeBase.Lat, Alt: 0}
		if err := e.store.SaveDrone(ctx, d); err != nil {
			e.logger.Error("drone dock failed", "drone", e.droneID, "error", err)
		} else {
			e.coord.wg.Add(1)
			go func() {
				defer e.coord.wg.Done()
				e.charger.Charge(e.coord.baseCtx, d.DroneID)
			}()
		}
	}

	if err := e.store.AppendHandoffLog(ctx, &model.HandoffLog{
		MissionID:       e.missionID,
		Timestamp:       now,
		Kind:            model.HandoffMissionComplete,
		OutgoingDroneID: e.droneID,
		OutgoingBattery: e.sim.Battery(),
		WaypointIndex:   m.CurrentWaypointIndex,
		Progress:        100,
	}); err != nil {
		e.logger.Error("complete log append failed", "error", err)
	}

	e.bus.Publish(bus.MissionCompleteEvent(e.missionID, now))
	e.bus.CloseTopic(e.missionID)
	e.logger.Info("mission completed", "drone", e.droneID)
}

// fail is the terminal error path: the mission is marked failed and the
// drone is released back to the pool.
func (e *Executor) fail(ctx context.Context, cause error) {
	e.logger.Error("mission failed", "error", cause)

	e.coord.mu.Lock()
	if m, err := e.store.GetMission(ctx, e.missionID); err == nil {
		if m.Status == model.MissionInProgress || m.Status == model.MissionPaused {
			m.Status = model.MissionFailed
			if err := e.store.SaveMission(ctx, m); err != nil {
				e.logger.Error("failed-status save failed", "error", err)
			}
		}
	}
	e.coord.mu.Unlock()

	if d, err := e.store.GetDrone(ctx, e.droneID); err == nil {
		d.Status = model.DroneAvailable
		d.CurrentMissionID = ""
		if err := e.store.SaveDrone(ctx, d); err != nil {
			e.logger.Error("drone release failed", "drone", e.droneID, "error", err)
		}
	}
	e.bus.CloseTopic(e.missionID)
}
