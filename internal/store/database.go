package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database manages the SQLite connection and schema for the gate-occupancy
// store. One canonical events table is used; see DESIGN.md for the
// events-vs-people_events decision.
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase opens (creating if necessary) the SQLite database at dbPath and
// ensures the schema exists.
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite does not support concurrent writers; the Store enforces
	// single-writer discipline by limiting the pool to one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{db: db, dbPath: dbPath}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetDB returns the underlying *sql.DB for callers that need raw access.
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// Path returns the absolute filesystem path backing this database.
func (d *Database) Path() string {
	abs, err := filepath.Abs(d.dbPath)
	if err != nil {
		return d.dbPath
	}
	return abs
}

const schema = `
-- One row per gate crossing. Immutable once written.
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_time TIMESTAMP NOT NULL,
	direction TEXT NOT NULL CHECK (direction IN ('IN', 'OUT')),
	camera_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- One row per calendar date.
CREATE TABLE IF NOT EXISTS daily_state (
	date TEXT PRIMARY KEY,
	total_morning INTEGER NOT NULL DEFAULT 0,
	is_frozen BOOLEAN NOT NULL DEFAULT 0,
	realtime_in INTEGER NOT NULL DEFAULT 0,
	realtime_out INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Maximal shortfall intervals; at most one open row per date.
CREATE TABLE IF NOT EXISTS missing_periods (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	session TEXT NOT NULL CHECK (session IN ('morning', 'afternoon')),
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP,
	duration_minutes REAL,
	missing_count_observed INTEGER NOT NULL DEFAULT 0
);

-- One row per attempted alert, including skips, for audit.
CREATE TABLE IF NOT EXISTS alert_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_time TIMESTAMP NOT NULL,
	expected_total INTEGER NOT NULL,
	current_total INTEGER NOT NULL,
	missing INTEGER NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('sent', 'failed', 'skipped')),
	reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_time ON events(event_time);
CREATE INDEX IF NOT EXISTS idx_events_camera_time ON events(camera_id, event_time);
CREATE INDEX IF NOT EXISTS idx_missing_periods_date ON missing_periods(date);
CREATE INDEX IF NOT EXISTS idx_missing_periods_open ON missing_periods(date, end_time);
CREATE INDEX IF NOT EXISTS idx_alert_logs_time ON alert_logs(alert_time);
`

func (d *Database) initSchema() error {
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// verifyTables confirms every required table is queryable, returning a row
// count per table. Used by Store.Init for startup verification/logging.
func (d *Database) verifyTables() (map[string]int64, error) {
	tables := []string{"events", "daily_state", "missing_periods", "alert_logs"}
	counts := make(map[string]int64, len(tables))
	for _, t := range tables {
		var n int64
		if err := d.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&n); err != nil {
			return nil, fmt.Errorf("table %s unreachable: %w", t, err)
		}
		counts[t] = n
	}
	return counts, nil
}
