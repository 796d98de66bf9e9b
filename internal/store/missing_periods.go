package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session identifies which half of the operating day a MissingPeriod belongs
// to.
type Session string

const (
	SessionMorning   Session = "morning"
	SessionAfternoon Session = "afternoon"
)

// MissingPeriod is a maximal contiguous interval during which live occupancy
// fell below the frozen morning baseline.
type MissingPeriod struct {
	ID                   int64
	Date                 string
	Session              Session
	StartTime            time.Time
	EndTime              sql.NullTime
	DurationMinutes      sql.NullFloat64
	MissingCountObserved int
}

// IsOpen reports whether the period has not yet been closed.
func (m MissingPeriod) IsOpen() bool {
	return !m.EndTime.Valid
}

// OpenMissingPeriod opens a new shortfall window for date. It fails if an
// open period already exists for that date — at most one open period per
// date is an invariant enforced here, not left to callers.
func (s *Store) OpenMissingPeriod(ctx context.Context, date time.Time, session Session, startTime time.Time) (int64, error) {
	key := dateKey(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM missing_periods WHERE date = ? AND end_time IS NULL`, key,
	).Scan(&existingID)
	if err == nil {
		return 0, fmt.Errorf("an open missing period already exists for %s (id=%d)", key, existingID)
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check for open missing period: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO missing_periods (date, session, start_time, missing_count_observed)
		 VALUES (?, ?, ?, 0)`,
		key, string(session), startTime.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to open missing period: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted missing period id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit missing period open: %w", err)
	}
	return id, nil
}

// UpdateMissingPeriod refreshes the rolling witnessed shortfall on an open
// period.
func (s *Store) UpdateMissingPeriod(ctx context.Context, id int64, missingObserved int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.GetDB().ExecContext(ctx,
		`UPDATE missing_periods SET missing_count_observed = ? WHERE id = ? AND end_time IS NULL`,
		missingObserved, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update missing period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm missing period update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("missing period %d not found or already closed", id)
	}
	return nil
}

// CloseMissingPeriod sets end_time and the derived duration, marking the
// period closed. A period closes only once; closing an already-closed period
// is a no-op error.
func (s *Store) CloseMissingPeriod(ctx context.Context, id int64, endTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var startTime time.Time
	err := s.db.GetDB().QueryRowContext(ctx,
		`SELECT start_time FROM missing_periods WHERE id = ? AND end_time IS NULL`, id,
	).Scan(&startTime)
	if err == sql.ErrNoRows {
		return fmt.Errorf("missing period %d not found or already closed", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read missing period: %w", err)
	}

	duration := endTime.Sub(startTime).Minutes()

	_, err = s.db.GetDB().ExecContext(ctx,
		`UPDATE missing_periods SET end_time = ?, duration_minutes = ? WHERE id = ?`,
		endTime.UTC(), duration, id,
	)
	if err != nil {
		return fmt.Errorf("failed to close missing period: %w", err)
	}
	return nil
}

// ActiveMissingPeriod returns the open period for date, if any.
func (s *Store) ActiveMissingPeriod(ctx context.Context, date time.Time) (*MissingPeriod, error) {
	key := dateKey(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var m MissingPeriod
	var sessionStr string
	err := s.db.GetDB().QueryRowContext(ctx,
		`SELECT id, date, session, start_time, end_time, duration_minutes, missing_count_observed
		 FROM missing_periods WHERE date = ? AND end_time IS NULL`, key,
	).Scan(&m.ID, &m.Date, &sessionStr, &m.StartTime, &m.EndTime, &m.DurationMinutes, &m.MissingCountObserved)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active missing period: %w", err)
	}
	m.Session = Session(sessionStr)
	return &m, nil
}

// MissingPeriodsForDate returns every period (open or closed) recorded for
// date, ordered by start_time ascending.
func (s *Store) MissingPeriodsForDate(ctx context.Context, date time.Time) ([]MissingPeriod, error) {
	key := dateKey(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.GetDB().QueryContext(ctx,
		`SELECT id, date, session, start_time, end_time, duration_minutes, missing_count_observed
		 FROM missing_periods WHERE date = ? ORDER BY start_time ASC`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing periods: %w", err)
	}
	defer rows.Close()

	var periods []MissingPeriod
	for rows.Next() {
		var m MissingPeriod
		var sessionStr string
		if err := rows.Scan(&m.ID, &m.Date, &sessionStr, &m.StartTime, &m.EndTime, &m.DurationMinutes, &m.MissingCountObserved); err != nil {
			return nil, fmt.Errorf("failed to scan missing period: %w", err)
		}
		m.Session = Session(sessionStr)
		periods = append(periods, m)
	}
	return periods, rows.Err()
}
