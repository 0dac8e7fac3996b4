// Package db owns the SQLite connection and schema migrations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Enforce single connection to avoid SQLITE_BUSY errors during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS missions (
			mission_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			site_name TEXT,
			survey_type TEXT,
			coverage_area TEXT,
			flight_path TEXT,
			altitude REAL,
			speed REAL,
			overlap REAL,
			status TEXT NOT NULL,
			phase TEXT NOT NULL,
			progress REAL DEFAULT 0,
			current_waypoint_index INTEGER DEFAULT 0,
			assigned_drone_id TEXT,
			origin_base_id TEXT,
			pending_replacement_drone_id TEXT,
			handoff_location TEXT,
			abort_reason TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_drone ON missions(assigned_drone_id);`,
		`CREATE INDEX IF NOT EXISTS idx_missions_site ON missions(site_name);`,
		`CREATE TABLE IF NOT EXISTS drones (
			drone_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			model TEXT,
			battery_level REAL DEFAULT 100,
			lng REAL DEFAULT 0,
			lat REAL DEFAULT 0,
			alt REAL DEFAULT 0,
			home_lng REAL DEFAULT 0,
			home_lat REAL DEFAULT 0,
			base_id TEXT,
			current_mission_id TEXT,
			status TEXT NOT NULL,
			max_speed REAL DEFAULT 15,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_drones_status ON drones(status);`,
		`CREATE INDEX IF NOT EXISTS idx_drones_base ON drones(base_id);`,
		`CREATE TABLE IF NOT EXISTS bases (
			base_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			lng REAL NOT NULL,
			lat REAL NOT NULL,
			status TEXT NOT NULL,
			max_drones INTEGER DEFAULT 10,
			operational_radius_km REAL DEFAULT 50,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bases_status ON bases(status);`,
		`CREATE TABLE IF NOT EXISTS telemetry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			drone_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			lng REAL, lat REAL,
			altitude REAL,
			heading REAL,
			speed REAL,
			battery REAL,
			waypoint_index INTEGER,
			progress REAL,
			phase TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_mission_ts ON telemetry(mission_id, ts DESC);`,
		`CREATE TABLE IF NOT EXISTS handoff_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			mission_id TEXT NOT NULL,
			ts DATETIME NOT NULL,
			kind TEXT NOT NULL,
			outgoing_drone_id TEXT,
			outgoing_battery REAL,
			incoming_drone_id TEXT,
			incoming_battery REAL,
			base_id TEXT,
			waypoint_index INTEGER,
			progress REAL,
			reason TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_handoff_mission_ts ON handoff_log(mission_id, ts ASC);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	return nil
}
