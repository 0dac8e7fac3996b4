package mission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"skysurvey/pkg/bus"
	"skysurvey/pkg/fleet"
	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
	"skysurvey/pkg/planner"
	"skysurvey/pkg/store"
)

const (
	// CriticalBattery is the level at which a mission drone must hand off.
	CriticalBattery = 20.0
	// MinBatteryForMission is the floor for dispatching a replacement.
	MinBatteryForMission = 30.0
	// RendezvousRadius is the handoff trigger distance in meters.
	RendezvousRadius = 10.0

	// returnSpeed is the fixed speed assumed for the flight home, m/s.
	returnSpeed = 10.0
	// returnMinSeconds and returnMaxSeconds clamp the return flight time.
	returnMinSeconds = 5.0
	returnMaxSeconds = 30.0
	// replacementBudgetTicks bounds a replacement flight.
	replacementBudgetTicks = 60
)

// Coordinator manages battery handoffs and the child flights they spawn.
// All mission mutations go through a single mutex so that the executor's
// rendezvous detector and the replacement flight's own detector cannot
// both complete the same handoff.
type Coordinator struct {
	mu       sync.Mutex
	store    store.Store
	bus      *bus.Bus
	selector *fleet.Selector
	charger  *fleet.Charger
	logger   *slog.Logger
	interval time.Duration

	// baseCtx outlives individual executors: a return flight keeps going
	// after its mission's executor has exited.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator. interval is the child-flight tick
// period, one second in production.
func NewCoordinator(baseCtx context.Context, st store.Store, b *bus.Bus,
	sel *fleet.Selector, ch *fleet.Charger, logger *slog.Logger, interval time.Duration) *Coordinator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Coordinator{
		store:    st,
		bus:      b,
		selector: sel,
		charger:  ch,
		logger:   logger,
		interval: interval,
		baseCtx:  baseCtx,
	}
}

// Wait blocks until all child flights and charging sessions finish.
func (c *Coordinator) Wait() { c.wg.Wait() }

// TriggerReplacement reacts to a critical-battery report: it picks a
// replacement drone and dispatches it to the outgoing drone's position,
// or aborts the mission when nobody can fly. A mission with a replacement
// already pending is left alone.
func (c *Coordinator) TriggerReplacement(ctx context.Context, missionID string, outgoing *model.Drone) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if m.PendingReplacementDroneID != "" || m.Status != model.MissionInProgress {
		return nil
	}

	replacement, err := c.selector.ReplacementFor(ctx, m, outgoing.DroneID, MinBatteryForMission)
	if errors.Is(err, fleet.ErrNoDroneAvailable) {
		return c.abortNoReplacementLocked(ctx, m, outgoing)
	}
	if err != nil {
		return err
	}

	replacement.Status = model.DroneDispatching
	if err := c.store.SaveDrone(ctx, replacement); err != nil {
		return fmt.Errorf("dispatch replacement: %w", err)
	}

	handoff := outgoing.Location
	m.PendingReplacementDroneID = replacement.DroneID
	m.HandoffLocation = &handoff
	if err := c.store.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("save mission for dispatch: %w", err)
	}

	now := time.Now().UTC()
	c.appendLog(ctx, &model.HandoffLog{
		MissionID:       m.MissionID,
		Timestamp:       now,
		Kind:            model.HandoffReplacementDispatched,
		OutgoingDroneID: outgoing.DroneID,
		OutgoingBattery: outgoing.BatteryLevel,
		IncomingDroneID: replacement.DroneID,
		IncomingBattery: replacement.BatteryLevel,
		BaseID:          replacement.BaseID,
		WaypointIndex:   m.CurrentWaypointIndex,
		Progress:        m.Progress,
	})
	c.bus.Publish(bus.ReplacementDispatchedEvent(m.MissionID, bus.ReplacementDispatched{
		OutgoingDroneID: outgoing.DroneID,
		OutgoingBattery: outgoing.BatteryLevel,
		IncomingDroneID: replacement.DroneID,
		IncomingBattery: replacement.BatteryLevel,
		WaypointIndex:   m.CurrentWaypointIndex,
		BaseID:          replacement.BaseID,
	}, now))

	c.logger.Info("replacement dispatched",
		"mission", m.MissionID, "outgoing", outgoing.DroneID,
		"incoming", replacement.DroneID, "battery", replacement.BatteryLevel)

	c.wg.Add(1)
	go c.replacementFlight(m.MissionID, replacement.DroneID, handoff, m.Altitude)
	return nil
}

// Complete transfers mission ownership to the replacement drone at the
// rendezvous point. Idempotent: whichever detector calls second finds the
// pending id cleared and gets a nil drone back.
func (c *Coordinator) Complete(ctx context.Context, missionID, replacementID string) (*model.Drone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.PendingReplacementDroneID != replacementID {
		return nil, nil
	}

	outgoing, err := c.store.GetDrone(ctx, m.AssignedDroneID)
	if err != nil {
		return nil, fmt.Errorf("load outgoing drone: %w", err)
	}
	incoming, err := c.store.GetDrone(ctx, replacementID)
	if err != nil {
		return nil, fmt.Errorf("load replacement drone: %w", err)
	}

	now := time.Now().UTC()
	c.appendLog(ctx, &model.HandoffLog{
		MissionID:       m.MissionID,
		Timestamp:       now,
		Kind:            model.HandoffComplete,
		OutgoingDroneID: outgoing.DroneID,
		OutgoingBattery: outgoing.BatteryLevel,
		IncomingDroneID: incoming.DroneID,
		IncomingBattery: incoming.BatteryLevel,
		WaypointIndex:   m.CurrentWaypointIndex,
		Progress:        m.Progress,
	})

	from := outgoing.Location
	outgoing.Status = model.DroneReturning
	outgoing.CurrentMissionID = ""
	if err := c.store.SaveDrone(ctx, outgoing); err != nil {
		return nil, fmt.Errorf("release outgoing drone: %w", err)
	}

	incoming.Status = model.DroneInFlight
	incoming.CurrentMissionID = m.MissionID
	if err := c.store.SaveDrone(ctx, incoming); err != nil {
		return nil, fmt.Errorf("bind replacement drone: %w", err)
	}

	m.AssignedDroneID = incoming.DroneID
	m.PendingReplacementDroneID = ""
	m.HandoffLocation = nil
	if err := c.store.SaveMission(ctx, m); err != nil {
		return nil, fmt.Errorf("save mission after handoff: %w", err)
	}

	c.bus.Publish(bus.HandoffCompleteEvent(m.MissionID, bus.HandoffComplete{
		OutgoingDroneID: outgoing.DroneID,
		IncomingDroneID: incoming.DroneID,
		WaypointIndex:   m.CurrentWaypointIndex,
	}, now))
	c.logger.Info("handoff complete",
		"mission", m.MissionID, "outgoing", outgoing.DroneID, "incoming", incoming.DroneID)

	c.wg.Add(1)
	go c.returnFlight(m.MissionID, outgoing.DroneID, from.GeoPoint(), outgoing.HomeBase)
	return incoming, nil
}

// RecordProgress persists one tick of survey progress. The mission row
// is re-read under the handoff mutex, so a handoff or status change that
// landed after the executor's reload is never overwritten by the
// executor's stale copy. Returns the fresh row; nothing is written when
// the mission is no longer in_progress.
func (c *Coordinator) RecordProgress(ctx context.Context, missionID string, progress float64, waypointIndex int, phase model.MissionPhase) (*model.Mission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MissionInProgress {
		return m, nil
	}
	m.Progress = progress
	m.CurrentWaypointIndex = waypointIndex
	m.Phase = phase
	if err := c.store.SaveMission(ctx, m); err != nil {
		return nil, fmt.Errorf("save tick progress: %w", err)
	}
	return m, nil
}

// Transition moves a mission from one status to another. ErrIllegalState
// when the current status is not from.
func (c *Coordinator) Transition(ctx context.Context, missionID string, from, to model.MissionStatus) (*model.Mission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != from {
		return nil, fmt.Errorf("mission %s is %s, not %s: %w", missionID, m.Status, from, ErrIllegalState)
	}
	m.Status = to
	if err := c.store.SaveMission(ctx, m); err != nil {
		return nil, fmt.Errorf("save mission: %w", err)
	}
	return m, nil
}

// AbortMission is the operator-initiated abort: terminal status, audit
// entry, drone sent home. The mission row is re-read under the mutex so
// a handoff that landed just before the abort is kept.
func (c *Coordinator) AbortMission(ctx context.Context, missionID, reason string) (*model.Mission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if m.Status != model.MissionInProgress && m.Status != model.MissionPaused {
		return nil, fmt.Errorf("mission %s is %s: %w", missionID, m.Status, ErrIllegalState)
	}

	var outgoing *model.Drone
	if m.AssignedDroneID != "" {
		d, err := c.store.GetDrone(ctx, m.AssignedDroneID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		outgoing = d
	}
	if err := c.abortLocked(ctx, m, outgoing, reason); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Coordinator) abortNoReplacementLocked(ctx context.Context, m *model.Mission, outgoing *model.Drone) error {
	reason := fmt.Sprintf("No replacement available (battery %.0f%%)", outgoing.BatteryLevel)
	return c.abortLocked(ctx, m, outgoing, reason)
}

func (c *Coordinator) abortLocked(ctx context.Context, m *model.Mission, outgoing *model.Drone, reason string) error {
	m.Status = model.MissionAborted
	m.AbortReason = reason
	if err := c.store.SaveMission(ctx, m); err != nil {
		return fmt.Errorf("save aborted mission: %w", err)
	}

	now := time.Now().UTC()
	logEntry := &model.HandoffLog{
		MissionID:     m.MissionID,
		Timestamp:     now,
		Kind:          model.HandoffMissionAborted,
		WaypointIndex: m.CurrentWaypointIndex,
		Progress:      m.Progress,
		Reason:        reason,
	}
	aborted := bus.MissionAborted{Reason: reason}

	if outgoing != nil {
		logEntry.OutgoingDroneID = outgoing.DroneID
		logEntry.OutgoingBattery = outgoing.BatteryLevel
		aborted.DroneID = outgoing.DroneID
		aborted.Battery = outgoing.BatteryLevel

		from := outgoing.Location
		outgoing.Status = model.DroneReturning
		outgoing.CurrentMissionID = ""
		if err := c.store.SaveDrone(ctx, outgoing); err != nil {
			return fmt.Errorf("release drone on abort: %w", err)
		}
		c.wg.Add(1)
		go c.returnFlight(m.MissionID, outgoing.DroneID, from.GeoPoint(), outgoing.HomeBase)
	}

	c.appendLog(ctx, logEntry)
	c.bus.Publish(bus.MissionAbortedEvent(m.MissionID, aborted, now))
	// Terminal state: no further events will come on this topic.
	c.bus.CloseTopic(m.MissionID)
	c.logger.Warn("mission aborted", "mission", m.MissionID, "reason", reason)
	return nil
}

// replacementFlight flies the replacement drone from its position to the
// handoff location, one waypoint per tick, within a bounded tick budget.
// It stands down if the mission stops wanting this replacement.
func (c *Coordinator) replacementFlight(missionID, droneID string, handoff model.Position, altitude float64) {
	defer c.wg.Done()
	ctx := c.baseCtx

	d, err := c.store.GetDrone(ctx, droneID)
	if err != nil {
		c.logger.Error("replacement flight: load drone", "drone", droneID, "error", err)
		return
	}
	target := handoff.GeoPoint()
	path := planner.PlanTravel(d.Location.GeoPoint(), target, altitude)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	step := 0
	for budget := 0; budget < replacementBudgetTicks; budget++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m, err := c.store.GetMission(ctx, missionID)
		if err != nil || !wantsReplacement(m, droneID) {
			c.standDown(ctx, droneID)
			return
		}

		if step < len(path) {
			wp := path[step]
			d.Location = model.Position{Lng: wp.Lng, Lat: wp.Lat, Alt: wp.Alt}
			step++
		} else {
			d.Location = handoff
		}
		if err := c.store.SaveDrone(ctx, d); err != nil {
			c.logger.Error("replacement flight: save position", "drone", droneID, "error", err)
		}

		if geo.Distance(d.Location.GeoPoint(), target) <= RendezvousRadius {
			if _, err := c.Complete(ctx, missionID, droneID); err != nil {
				c.logger.Error("replacement flight: complete handoff", "mission", missionID, "error", err)
			}
			return
		}
	}

	c.logger.Warn("replacement flight: budget exhausted", "mission", missionID, "drone", droneID)
	c.standDown(ctx, droneID)
}

func wantsReplacement(m *model.Mission, droneID string) bool {
	if m.PendingReplacementDroneID != droneID {
		return false
	}
	return m.Status == model.MissionInProgress || m.Status == model.MissionPaused
}

// standDown restores a dispatched replacement that is no longer needed.
func (c *Coordinator) standDown(ctx context.Context, droneID string) {
	d, err := c.store.GetDrone(ctx, droneID)
	if err != nil {
		return
	}
	if d.Status == model.DroneDispatching {
		d.Status = model.DroneAvailable
		if err := c.store.SaveDrone(ctx, d); err != nil {
			c.logger.Error("replacement stand-down failed", "drone", droneID, "error", err)
		}
	}
}

// returnFlight brings a drone home by interpolating from the handoff (or
// abort) location to its base over a clamped travel time, then docks it
// on a charger.
func (c *Coordinator) returnFlight(missionID, droneID string, from geo.Point, base model.Position) {
	defer c.wg.Done()
	ctx := c.baseCtx

	to := base.GeoPoint()
	travelSeconds := geo.Distance(from, to) / returnSpeed
	if travelSeconds < returnMinSeconds {
		travelSeconds = returnMinSeconds
	}
	if travelSeconds > returnMaxSeconds {
		travelSeconds = returnMaxSeconds
	}
	steps := int(travelSeconds + 0.5)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d, err := c.store.GetDrone(ctx, droneID)
		if err != nil {
			c.logger.Error("return flight: load drone", "drone", droneID, "error", err)
			return
		}
		if d.Status != model.DroneReturning {
			return
		}

		p := geo.Interpolate(from, to, float64(i)/float64(steps))
		d.Location = model.Position{Lng: p.Lng, Lat: p.Lat, Alt: d.Location.Alt}
		if i == steps {
			d.Location = model.Position{Lng: base.Lng, Lat: base.Lat, Alt: 0}
			d.Status = model.DroneCharging
		}
		if err := c.store.SaveDrone(ctx, d); err != nil {
			c.logger.Error("return flight: save position", "drone", droneID, "error", err)
			return
		}

		if i == steps {
			c.appendLog(ctx, &model.HandoffLog{
				MissionID:       missionID,
				Timestamp:       time.Now().UTC(),
				Kind:            model.HandoffReturnToBase,
				OutgoingDroneID: droneID,
				OutgoingBattery: d.BatteryLevel,
				BaseID:          d.BaseID,
			})
			c.logger.Info("drone returned to base", "drone", droneID, "base", d.BaseID)
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.charger.Charge(ctx, droneID)
			}()
		}
	}
}

func (c *Coordinator) appendLog(ctx context.Context, e *model.HandoffLog) {
	if err := c.store.AppendHandoffLog(ctx, e); err != nil {
		c.logger.Error("handoff log append failed",
			"mission", e.MissionID, "kind", e.Kind, "error", err)
	}
}
