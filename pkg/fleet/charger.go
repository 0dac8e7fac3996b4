package fleet

import (
	"context"
	"log/slog"
	"time"

	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

const (
	// ChargeRate is percent of battery gained per charging tick.
	ChargeRate = 5.0
	// maxChargeTicks caps a charging session regardless of battery level.
	maxChargeTicks = 30
)

// Charger recharges docked drones. One worker runs per charging drone;
// the worker exits if something else changes the drone's status.
type Charger struct {
	store    store.DroneStore
	logger   *slog.Logger
	interval time.Duration
}

// NewCharger creates a charger ticking at the given interval. Intervals
// of zero or less default to one second.
func NewCharger(st store.DroneStore, logger *slog.Logger, interval time.Duration) *Charger {
	if interval <= 0 {
		interval = time.Second
	}
	return &Charger{store: st, logger: logger, interval: interval}
}

// Charge runs one recharge session to completion. It returns when the
// drone reaches full battery, when its status stops being charging, when
// the tick cap is hit, or when ctx is cancelled.
func (c *Charger) Charge(ctx context.Context, droneID string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for i := 0; i < maxChargeTicks; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d, err := c.store.GetDrone(ctx, droneID)
		if err != nil {
			c.logger.Error("charger: reload failed", "drone", droneID, "error", err)
			return
		}
		if d.Status != model.DroneCharging {
			c.logger.Debug("charger: preempted", "drone", droneID, "status", d.Status)
			return
		}

		d.BatteryLevel = min(100, d.BatteryLevel+ChargeRate)
		if d.BatteryLevel >= 100 {
			d.Status = model.DroneAvailable
		}
		if err := c.store.SaveDrone(ctx, d); err != nil {
			c.logger.Error("charger: save failed", "drone", droneID, "error", err)
			return
		}
		if d.Status == model.DroneAvailable {
			c.logger.Info("charger: drone fully charged", "drone", droneID)
			return
		}
	}
	c.logger.Warn("charger: session hit tick cap", "drone", droneID)
}
