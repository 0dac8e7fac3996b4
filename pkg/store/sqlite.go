package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skysurvey/pkg/db"
	"skysurvey/pkg/model"
)

// SQLiteStore implements Store on the shared SQLite connection.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Missions ---

const missionColumns = `mission_id, name, description, site_name, survey_type,
	coverage_area, flight_path, altitude, speed, overlap,
	status, phase, progress, current_waypoint_index,
	assigned_drone_id, origin_base_id, pending_replacement_drone_id,
	handoff_location, abort_reason, started_at, completed_at, created_at`

func (s *SQLiteStore) GetMission(ctx context.Context, id string) (*model.Mission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE mission_id = ?`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mission %q: %w", id, ErrNotFound)
	}
	return m, err
}

func (s *SQLiteStore) SaveMission(ctx context.Context, m *model.Mission) error {
	coverage, err := marshalNullable(!m.CoverageArea.IsZero(), m.CoverageArea)
	if err != nil {
		return err
	}
	path, err := marshalNullable(m.FlightPath != nil, m.FlightPath)
	if err != nil {
		return err
	}
	handoff, err := marshalNullable(m.HandoffLocation != nil, m.HandoffLocation)
	if err != nil {
		return err
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO missions (`+missionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MissionID, m.Name, m.Description, m.SiteName, m.SurveyType,
		coverage, path, m.Altitude, m.Speed, m.Overlap,
		string(m.Status), string(m.Phase), m.Progress, m.CurrentWaypointIndex,
		nullString(m.AssignedDroneID), nullString(m.OriginBaseID),
		nullString(m.PendingReplacementDroneID),
		handoff, nullString(m.AbortReason),
		nullTime(m.StartedAt), nullTime(m.CompletedAt), createdAt,
	)
	return err
}

func (s *SQLiteStore) DeleteMission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM missions WHERE mission_id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mission %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) QueryMissions(ctx context.Context, f MissionFilter) ([]*model.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.SiteName != "" {
		query += ` AND site_name = ?`
		args = append(args, f.SiteName)
	}
	if f.DroneID != "" {
		query += ` AND assigned_drone_id = ?`
		args = append(args, f.DroneID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (*model.Mission, error) {
	var m model.Mission
	var description, siteName, surveyType sql.NullString
	var coverage, path, handoff sql.NullString
	var droneID, baseID, pendingID, abortReason sql.NullString
	var startedAt, completedAt sql.NullTime
	var status, phase string

	err := row.Scan(
		&m.MissionID, &m.Name, &description, &siteName, &surveyType,
		&coverage, &path, &m.Altitude, &m.Speed, &m.Overlap,
		&status, &phase, &m.Progress, &m.CurrentWaypointIndex,
		&droneID, &baseID, &pendingID,
		&handoff, &abortReason, &startedAt, &completedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Description = description.String
	m.SiteName = siteName.String
	m.SurveyType = surveyType.String
	m.Status = model.MissionStatus(status)
	m.Phase = model.MissionPhase(phase)
	m.AssignedDroneID = droneID.String
	m.OriginBaseID = baseID.String
	m.PendingReplacementDroneID = pendingID.String
	m.AbortReason = abortReason.String

	if coverage.Valid {
		if err := json.Unmarshal([]byte(coverage.String), &m.CoverageArea); err != nil {
			return nil, fmt.Errorf("decode coverage area: %w", err)
		}
	}
	if path.Valid {
		m.FlightPath = &model.FlightPath{}
		if err := json.Unmarshal([]byte(path.String), m.FlightPath); err != nil {
			return nil, fmt.Errorf("decode flight path: %w", err)
		}
	}
	if handoff.Valid {
		m.HandoffLocation = &model.Position{}
		if err := json.Unmarshal([]byte(handoff.String), m.HandoffLocation); err != nil {
			return nil, fmt.Errorf("decode handoff location: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		m.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		m.CompletedAt = &t
	}
	return &m, nil
}

// --- Drones ---

const droneColumns = `drone_id, name, model, battery_level, lng, lat, alt,
	home_lng, home_lat, base_id, current_mission_id, status, max_speed, created_at`

func (s *SQLiteStore) GetDrone(ctx context.Context, id string) (*model.Drone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+droneColumns+` FROM drones WHERE drone_id = ?`, id)
	d, err := scanDrone(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("drone %q: %w", id, ErrNotFound)
	}
	return d, err
}

func (s *SQLiteStore) SaveDrone(ctx context.Context, d *model.Drone) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO drones (`+droneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DroneID, d.Name, d.Model, d.BatteryLevel,
		d.Location.Lng, d.Location.Lat, d.Location.Alt,
		d.HomeBase.Lng, d.HomeBase.Lat,
		nullString(d.BaseID), nullString(d.CurrentMissionID),
		string(d.Status), d.MaxSpeed, createdAt,
	)
	return err
}

func (s *SQLiteStore) QueryDrones(ctx context.Context) ([]*model.Drone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+droneColumns+` FROM drones ORDER BY drone_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drones []*model.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		drones = append(drones, d)
	}
	return drones, rows.Err()
}

func (s *SQLiteStore) QueryAvailableDrones(ctx context.Context, baseID string, minBattery float64) ([]*model.Drone, error) {
	query := `SELECT ` + droneColumns + ` FROM drones WHERE status = ?`
	args := []any{string(model.DroneAvailable)}
	if baseID != "" {
		query += ` AND base_id = ?`
		args = append(args, baseID)
	}
	if minBattery > 0 {
		query += ` AND battery_level >= ?`
		args = append(args, minBattery)
	}
	query += ` ORDER BY battery_level DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drones []*model.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		drones = append(drones, d)
	}
	return drones, rows.Err()
}

func scanDrone(row rowScanner) (*model.Drone, error) {
	var d model.Drone
	var droneModel, baseID, missionID sql.NullString
	var status string

	err := row.Scan(
		&d.DroneID, &d.Name, &droneModel, &d.BatteryLevel,
		&d.Location.Lng, &d.Location.Lat, &d.Location.Alt,
		&d.HomeBase.Lng, &d.HomeBase.Lat,
		&baseID, &missionID, &status, &d.MaxSpeed, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Model = droneModel.String
	d.BaseID = baseID.String
	d.CurrentMissionID = missionID.String
	d.Status = model.DroneStatus(status)
	return &d, nil
}

// --- Bases ---

const baseColumns = `base_id, name, lng, lat, status, max_drones, operational_radius_km, created_at`

func (s *SQLiteStore) GetBase(ctx context.Context, id string) (*model.Base, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+baseColumns+` FROM bases WHERE base_id = ?`, id)
	b, err := scanBase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("base %q: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *SQLiteStore) SaveBase(ctx context.Context, b *model.Base) error {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO bases (`+baseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BaseID, b.Name, b.Location.Lng, b.Location.Lat,
		string(b.Status), b.MaxDrones, b.OperationalRadiusKm, createdAt,
	)
	return err
}

func (s *SQLiteStore) QueryBases(ctx context.Context) ([]*model.Base, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+baseColumns+` FROM bases ORDER BY base_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bases []*model.Base
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, err
		}
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

func (s *SQLiteStore) QueryActiveBases(ctx context.Context) ([]*model.Base, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+baseColumns+` FROM bases WHERE status = ? ORDER BY base_id`,
		string(model.BaseActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bases []*model.Base
	for rows.Next() {
		b, err := scanBase(rows)
		if err != nil {
			return nil, err
		}
		bases = append(bases, b)
	}
	return bases, rows.Err()
}

func scanBase(row rowScanner) (*model.Base, error) {
	var b model.Base
	var status string
	err := row.Scan(
		&b.BaseID, &b.Name, &b.Location.Lng, &b.Location.Lat,
		&status, &b.MaxDrones, &b.OperationalRadiusKm, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = model.BaseStatus(status)
	return &b, nil
}

// --- Telemetry ---

func (s *SQLiteStore) AppendTelemetry(ctx context.Context, p *model.TelemetryPoint) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO telemetry
		(mission_id, drone_id, ts, lng, lat, altitude, heading, speed, battery, waypoint_index, progress, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MissionID, p.DroneID, p.Timestamp,
		p.Position.Lng, p.Position.Lat, p.AltitudeAGL,
		p.Heading, p.Speed, p.Battery,
		p.WaypointIndex, p.Progress, string(p.Phase),
	)
	return err
}

func (s *SQLiteStore) QueryTelemetry(ctx context.Context, missionID string, limit int) ([]*model.TelemetryPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		mission_id, drone_id, ts, lng, lat, altitude, heading, speed, battery, waypoint_index, progress, phase
		FROM telemetry WHERE mission_id = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		missionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*model.TelemetryPoint
	for rows.Next() {
		var p model.TelemetryPoint
		var phase string
		err := rows.Scan(
			&p.MissionID, &p.DroneID, &p.Timestamp,
			&p.Position.Lng, &p.Position.Lat, &p.AltitudeAGL,
			&p.Heading, &p.Speed, &p.Battery,
			&p.WaypointIndex, &p.Progress, &phase,
		)
		if err != nil {
			return nil, err
		}
		p.Phase = model.MissionPhase(phase)
		points = append(points, &p)
	}
	return points, rows.Err()
}

// --- Handoff log ---

func (s *SQLiteStore) AppendHandoffLog(ctx context.Context, e *model.HandoffLog) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO handoff_log
		(mission_id, ts, kind, outgoing_drone_id, outgoing_battery, incoming_drone_id, incoming_battery, base_id, waypoint_index, progress, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MissionID, e.Timestamp, string(e.Kind),
		nullString(e.OutgoingDroneID), e.OutgoingBattery,
		nullString(e.IncomingDroneID), e.IncomingBattery,
		nullString(e.BaseID), e.WaypointIndex, e.Progress, nullString(e.Reason),
	)
	return err
}

func (s *SQLiteStore) QueryHandoffHistory(ctx context.Context, missionID string) ([]*model.HandoffLog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		mission_id, ts, kind, outgoing_drone_id, outgoing_battery, incoming_drone_id, incoming_battery, base_id, waypoint_index, progress, reason
		FROM handoff_log WHERE mission_id = ? ORDER BY ts ASC, id ASC`,
		missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.HandoffLog
	for rows.Next() {
		var e model.HandoffLog
		var kind string
		var outID, inID, baseID, reason sql.NullString
		err := rows.Scan(
			&e.MissionID, &e.Timestamp, &kind,
			&outID, &e.OutgoingBattery, &inID, &e.IncomingBattery,
			&baseID, &e.WaypointIndex, &e.Progress, &reason,
		)
		if err != nil {
			return nil, err
		}
		e.Kind = model.HandoffKind(kind)
		e.OutgoingDroneID = outID.String
		e.IncomingDroneID = inID.String
		e.BaseID = baseID.String
		e.Reason = reason.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- helpers ---

func marshalNullable(present bool, v any) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
