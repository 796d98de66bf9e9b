package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

// selfTestMarkerDelay is how long Init waits, after finding an empty Events
// table, before inserting the self-test marker event.
const selfTestMarkerDelay = 60 * time.Second

// selfTestCameraID tags the marker event Init inserts to prove the write
// path end-to-end when no real crossing has happened yet.
const selfTestCameraID = "self_test"

// Direction is the normalized crossing direction recorded for an event.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Store is the single point of persistence for gate-crossing events, daily
// baseline state, missing-period shortfall windows, and alert audit logs. It
// wraps a single-writer SQLite connection and is safe for concurrent use.
type Store struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// New opens the database at dbPath, verifies the schema, and returns a ready
// Store.
func New(dbPath string, log *logger.Logger) (*Store, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, logger: log}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init verifies every table is reachable and logs row counts. It is the
// startup self-check invoked once before any service begins producing
// crossings. If Events is empty, it also arms a delayed write-path proof:
// after selfTestMarkerDelay, if the table is still empty, it inserts one
// direction=IN, camera_id="self_test" marker event.
func (s *Store) Init() error {
	counts, err := s.db.verifyTables()
	if err != nil {
		return fmt.Errorf("store self-test failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("store self-test passed",
			"events", counts["events"],
			"daily_state", counts["daily_state"],
			"missing_periods", counts["missing_periods"],
			"alert_logs", counts["alert_logs"],
			"path", s.db.Path(),
		)
	}

	if counts["events"] == 0 {
		go s.insertSelfTestMarkerAfterDelay()
	}
	return nil
}

// insertSelfTestMarkerAfterDelay waits selfTestMarkerDelay and, if Events is
// still empty, writes the self-test marker event. Re-checking the count
// before writing avoids a spurious marker on a service that received its
// first real crossing during the wait.
func (s *Store) insertSelfTestMarkerAfterDelay() {
	time.Sleep(selfTestMarkerDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := s.db.verifyTables()
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("self-test marker check failed", "error", err)
		}
		return
	}
	if counts["events"] != 0 {
		return
	}

	if _, err := s.AppendEvent(ctx, time.Now(), DirectionIn, selfTestCameraID); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to insert self-test marker event", "error", err)
		}
		return
	}
	if s.logger != nil {
		s.logger.Info("inserted self-test marker event", "camera_id", selfTestCameraID)
	}
}

// dateKey formats a time.Time as the canonical YYYY-MM-DD key used across
// daily_state and missing_periods.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
