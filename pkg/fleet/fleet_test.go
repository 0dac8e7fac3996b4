package fleet

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysurvey/pkg/geo"
	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedBases(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveBase(ctx, &model.Base{
		BaseID: "BASE-NORTH", Name: "North", Status: model.BaseActive,
		Location: model.Position{Lng: 72.87, Lat: 19.20},
	}))
	require.NoError(t, st.SaveBase(ctx, &model.Base{
		BaseID: "BASE-SOUTH", Name: "South", Status: model.BaseActive,
		Location: model.Position{Lng: 72.87, Lat: 18.90},
	}))
	require.NoError(t, st.SaveBase(ctx, &model.Base{
		BaseID: "BASE-DOWN", Name: "Down", Status: model.BaseOffline,
		Location: model.Position{Lng: 72.87, Lat: 19.07},
	}))
}

func missionNear(lat float64) *model.Mission {
	d := 0.005
	return &model.Mission{
		MissionID: "MSN-FLEET",
		CoverageArea: model.Polygon{Polygon: orb.Polygon{orb.Ring{
			{72.87 - d, lat - d}, {72.87 + d, lat - d}, {72.87 + d, lat + d}, {72.87 - d, lat + d}, {72.87 - d, lat - d},
		}}},
		OriginBaseID: "BASE-NORTH",
	}
}

func TestAutoAssignPicksNearestBaseHighestBattery(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-N1", Name: "n1", BaseID: "BASE-NORTH", BatteryLevel: 70, Status: model.DroneAvailable}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-N2", Name: "n2", BaseID: "BASE-NORTH", BatteryLevel: 95, Status: model.DroneAvailable}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-S1", Name: "s1", BaseID: "BASE-SOUTH", BatteryLevel: 100, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	d, err := sel.AutoAssign(ctx, missionNear(19.19))
	require.NoError(t, err)
	assert.Equal(t, "DRN-N2", d.DroneID, "nearest base wins even over a fuller drone elsewhere")
}

func TestAutoAssignFallsBackToGlobalPool(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	// Nearest base (north) has no available drone.
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-N1", Name: "n1", BaseID: "BASE-NORTH", BatteryLevel: 90, Status: model.DroneInFlight}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-S1", Name: "s1", BaseID: "BASE-SOUTH", BatteryLevel: 80, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	d, err := sel.AutoAssign(ctx, missionNear(19.19))
	require.NoError(t, err)
	assert.Equal(t, "DRN-S1", d.DroneID)
}

func TestAutoAssignNoPolygonUsesGlobalPool(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-A", Name: "a", BaseID: "BASE-SOUTH", BatteryLevel: 60, Status: model.DroneAvailable}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-B", Name: "b", BaseID: "BASE-NORTH", BatteryLevel: 85, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	d, err := sel.AutoAssign(ctx, &model.Mission{MissionID: "MSN-X"})
	require.NoError(t, err)
	assert.Equal(t, "DRN-B", d.DroneID, "highest battery globally")
}

func TestAutoAssignNoDrone(t *testing.T) {
	st := store.NewMemoryStore()
	seedBases(t, st)

	sel := NewSelector(st, testLogger())
	_, err := sel.AutoAssign(context.Background(), missionNear(19.19))
	assert.ErrorIs(t, err, ErrNoDroneAvailable)
}

func TestReplacementForPrefersOriginBase(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-OUT", Name: "out", BaseID: "BASE-NORTH", BatteryLevel: 18, Status: model.DroneInFlight}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-HOME", Name: "home", BaseID: "BASE-NORTH", BatteryLevel: 55, Status: model.DroneAvailable}))
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-AWAY", Name: "away", BaseID: "BASE-SOUTH", BatteryLevel: 100, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	d, err := sel.ReplacementFor(ctx, missionNear(19.19), "DRN-OUT", 30)
	require.NoError(t, err)
	assert.Equal(t, "DRN-HOME", d.DroneID, "same base beats higher battery elsewhere")
}

func TestReplacementForMinBatteryBoundary(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-2990", Name: "low", BaseID: "BASE-NORTH", BatteryLevel: 29.9, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	_, err := sel.ReplacementFor(ctx, missionNear(19.19), "DRN-OUT", 30)
	assert.ErrorIs(t, err, ErrNoDroneAvailable, "29.9 percent is below the dispatch floor")

	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-3000", Name: "ok", BaseID: "BASE-NORTH", BatteryLevel: 30.0, Status: model.DroneAvailable}))
	d, err := sel.ReplacementFor(ctx, missionNear(19.19), "DRN-OUT", 30)
	require.NoError(t, err)
	assert.Equal(t, "DRN-3000", d.DroneID, "exactly 30 percent qualifies")
}

func TestReplacementForExcludesOutgoing(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	seedBases(t, st)
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{DroneID: "DRN-OUT", Name: "out", BaseID: "BASE-NORTH", BatteryLevel: 80, Status: model.DroneAvailable}))

	sel := NewSelector(st, testLogger())
	_, err := sel.ReplacementFor(ctx, missionNear(19.19), "DRN-OUT", 30)
	assert.ErrorIs(t, err, ErrNoDroneAvailable)
}

func TestBaseIndexNearest(t *testing.T) {
	bases := []*model.Base{
		{BaseID: "BASE-A", Location: model.Position{Lng: 72.87, Lat: 19.20}},
		{BaseID: "BASE-B", Location: model.Position{Lng: 72.87, Lat: 18.90}},
	}
	idx := NewBaseIndex(bases)

	got := idx.Nearest(geo.Point{Lat: 19.18, Lng: 72.87})
	require.NotNil(t, got)
	assert.Equal(t, "BASE-A", got.BaseID)

	got = idx.Nearest(geo.Point{Lat: 18.95, Lng: 72.87})
	require.NotNil(t, got)
	assert.Equal(t, "BASE-B", got.BaseID)
}

func TestBaseIndexFarQueryStillResolves(t *testing.T) {
	idx := NewBaseIndex([]*model.Base{
		{BaseID: "BASE-A", Location: model.Position{Lng: 72.87, Lat: 19.20}},
	})
	// Other side of the planet: outside any search ring, served by the
	// fallback scan.
	got := idx.Nearest(geo.Point{Lat: -40, Lng: -107})
	require.NotNil(t, got)
	assert.Equal(t, "BASE-A", got.BaseID)
}

func TestBaseIndexEmpty(t *testing.T) {
	idx := NewBaseIndex(nil)
	assert.Nil(t, idx.Nearest(geo.Point{Lat: 0, Lng: 0}))
}

func TestChargerChargesToFull(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{
		DroneID: "DRN-C", Name: "c", BatteryLevel: 82, Status: model.DroneCharging,
	}))

	NewCharger(st, testLogger(), time.Millisecond).Charge(ctx, "DRN-C")

	d, err := st.GetDrone(ctx, "DRN-C")
	require.NoError(t, err)
	assert.Equal(t, 100.0, d.BatteryLevel, "capped at 100, not 82+4*5=102")
	assert.Equal(t, model.DroneAvailable, d.Status)
}

func TestChargerPreemptedByStatusChange(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{
		DroneID: "DRN-C", Name: "c", BatteryLevel: 50, Status: model.DroneMaintenance,
	}))

	NewCharger(st, testLogger(), time.Millisecond).Charge(ctx, "DRN-C")

	d, err := st.GetDrone(ctx, "DRN-C")
	require.NoError(t, err)
	assert.Equal(t, 50.0, d.BatteryLevel, "no charging outside charging status")
	assert.Equal(t, model.DroneMaintenance, d.Status)
}

// leakyDroneStore loses every battery write, as if the pack never takes
// charge. The session must still end at the tick cap.
type leakyDroneStore struct {
	store.DroneStore
	saves int
}

func (s *leakyDroneStore) SaveDrone(_ context.Context, _ *model.Drone) error {
	s.saves++
	return nil
}

func TestChargerTickCap(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.SaveDrone(ctx, &model.Drone{
		DroneID: "DRN-C", Name: "c", BatteryLevel: 50, Status: model.DroneCharging,
	}))
	leaky := &leakyDroneStore{DroneStore: st}

	NewCharger(leaky, testLogger(), time.Millisecond).Charge(ctx, "DRN-C")

	assert.Equal(t, 30, leaky.saves, "session ends at the tick cap")
}

func TestChargerContextCancel(t *testing.T) {
	st := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, st.SaveDrone(context.Background(), &model.Drone{
		DroneID: "DRN-C", Name: "c", BatteryLevel: 10, Status: model.DroneCharging,
	}))

	done := make(chan struct{})
	go func() {
		NewCharger(st, testLogger(), time.Hour).Charge(ctx, "DRN-C")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("charger ignored context cancellation")
	}
}
