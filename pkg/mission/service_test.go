package mission

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skysurvey/pkg/model"
	"skysurvey/pkg/store"
)

func draft() *model.Mission {
	return &model.Mission{
		Name:         "draft survey",
		SurveyType:   string(model.PatternPerimeter),
		CoverageArea: smallSquare(),
		Altitude:     60,
		Speed:        12,
		Overlap:      50,
	}
}

func TestCreateMissionDefaultsAndValidation(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, &model.Mission{
		Name:         "defaults",
		CoverageArea: smallSquare(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.MissionID)
	assert.Equal(t, model.MissionDraft, m.Status)
	assert.Equal(t, model.PhaseIdle, m.Phase)
	assert.Equal(t, 50.0, m.Altitude)
	assert.Equal(t, 10.0, m.Speed)

	cases := []struct {
		name string
		mod  func(*model.Mission)
	}{
		{"empty name", func(m *model.Mission) { m.Name = "" }},
		{"bad pattern", func(m *model.Mission) { m.SurveyType = "zigzag" }},
		{"overlap too high", func(m *model.Mission) { m.Overlap = 95 }},
		{"negative overlap", func(m *model.Mission) { m.Overlap = -1 }},
		{"negative speed", func(m *model.Mission) { m.Speed = -5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := draft()
			tc.mod(bad)
			_, err := w.svc.CreateMission(ctx, bad)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateMissionNormalizesLongitudes(t *testing.T) {
	w := newWorld(t)

	m, err := w.svc.CreateMission(context.Background(), &model.Mission{
		Name: "wrapped",
		CoverageArea: model.Polygon{Polygon: orb.Polygon{orb.Ring{
			{190, 0}, {190.01, 0}, {190.01, 0.01}, {190, 0.01}, {190, 0},
		}}},
	})
	require.NoError(t, err)
	for _, p := range m.CoverageArea.OuterRing() {
		assert.LessOrEqual(t, p[0], 180.0)
		assert.GreaterOrEqual(t, p[0], -180.0)
	}
}

func TestUpdateMissionRules(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, draft())
	require.NoError(t, err)

	m.Name = "renamed"
	m.Altitude = 80
	updated, err := w.svc.UpdateMission(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 80.0, updated.Altitude)

	// Editing a running mission is rejected.
	running, err := w.store.GetMission(ctx, m.MissionID)
	require.NoError(t, err)
	running.Status = model.MissionInProgress
	require.NoError(t, w.store.SaveMission(ctx, running))

	_, err = w.svc.UpdateMission(ctx, m)
	assert.ErrorIs(t, err, ErrIllegalState)
	err = w.svc.DeleteMission(ctx, m.MissionID)
	assert.ErrorIs(t, err, ErrIllegalState)
}

func TestUpdateMissionInvalidatesPlan(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, draft())
	require.NoError(t, err)
	_, err = w.svc.GeneratePath(ctx, m.MissionID)
	require.NoError(t, err)

	m.Altitude = 120
	updated, err := w.svc.UpdateMission(ctx, m)
	require.NoError(t, err)
	assert.Nil(t, updated.FlightPath, "parameter change discards the stale plan")
}

func TestDeleteMission(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, draft())
	require.NoError(t, err)
	require.NoError(t, w.svc.DeleteMission(ctx, m.MissionID))

	_, err = w.svc.GetMission(ctx, m.MissionID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGeneratePath(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, draft())
	require.NoError(t, err)

	planned, err := w.svc.GeneratePath(ctx, m.MissionID)
	require.NoError(t, err)
	require.NotNil(t, planned.FlightPath)
	assert.Equal(t, model.PatternPerimeter, planned.FlightPath.Pattern)
	assert.NotEmpty(t, planned.FlightPath.Waypoints)
	assert.Greater(t, planned.FlightPath.TotalDistance, 0.0)

	// A degenerate polygon cannot be planned.
	thin, err := w.svc.CreateMission(ctx, &model.Mission{
		Name: "thin",
		CoverageArea: model.Polygon{Polygon: orb.Polygon{orb.Ring{
			{0, 0}, {1, 1}, {0, 0},
		}}},
	})
	require.NoError(t, err)
	_, err = w.svc.GeneratePath(ctx, thin.MissionID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPauseResumeLegality(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	m, err := w.svc.CreateMission(ctx, draft())
	require.NoError(t, err)

	_, err = w.svc.PauseMission(ctx, m.MissionID)
	assert.ErrorIs(t, err, ErrIllegalState, "cannot pause a draft")
	_, err = w.svc.ResumeMission(ctx, m.MissionID)
	assert.ErrorIs(t, err, ErrIllegalState, "cannot resume a draft")
	_, err = w.svc.AbortMission(ctx, m.MissionID, "")
	assert.ErrorIs(t, err, ErrIllegalState, "cannot abort a draft")
}

func TestQueryTelemetryUnknownMission(t *testing.T) {
	w := newWorld(t)
	_, err := w.svc.QueryTelemetry(context.Background(), "MSN-NOPE", 10)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = w.svc.QueryHandoffHistory(context.Background(), "MSN-NOPE")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
