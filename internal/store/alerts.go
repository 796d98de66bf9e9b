package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AlertStatus records the outcome of a single alert decision.
type AlertStatus string

const (
	AlertStatusSent    AlertStatus = "sent"
	AlertStatusFailed  AlertStatus = "failed"
	AlertStatusSkipped AlertStatus = "skipped"
)

// AlertLog is one row of the alert audit trail, written for every tick
// regardless of whether a message was actually dispatched.
type AlertLog struct {
	ID            int64
	AlertTime     time.Time
	ExpectedTotal int
	CurrentTotal  int
	Missing       int
	Status        AlertStatus
	Reason        string
}

// AppendAlert records an alert decision. It always succeeds from the caller's
// perspective: a duplicate or redundant entry is simply another audit row,
// never an error.
func (s *Store) AppendAlert(ctx context.Context, row AlertLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.GetDB().ExecContext(ctx,
		`INSERT INTO alert_logs (alert_time, expected_total, current_total, missing, status, reason)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.AlertTime.UTC(), row.ExpectedTotal, row.CurrentTotal, row.Missing, string(row.Status), row.Reason,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append alert log: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted alert log id: %w", err)
	}
	return id, nil
}

// AlertsForDate returns every alert log whose alert_time falls within date,
// ordered ascending.
func (s *Store) AlertsForDate(ctx context.Context, date time.Time) ([]AlertLog, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.GetDB().QueryContext(ctx,
		`SELECT id, alert_time, expected_total, current_total, missing, status, reason
		 FROM alert_logs
		 WHERE alert_time >= ? AND alert_time < ?
		 ORDER BY alert_time ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert logs: %w", err)
	}
	defer rows.Close()

	var logs []AlertLog
	for rows.Next() {
		var a AlertLog
		var status string
		if err := rows.Scan(&a.ID, &a.AlertTime, &a.ExpectedTotal, &a.CurrentTotal, &a.Missing, &status, &a.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan alert log: %w", err)
		}
		a.Status = AlertStatus(status)
		logs = append(logs, a)
	}
	return logs, rows.Err()
}

// LastSentAlert returns the most recent alert log with status "sent", or nil
// if none exists. Used by AlertManager to enforce its cooldown window.
func (s *Store) LastSentAlert(ctx context.Context) (*AlertLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a AlertLog
	var status string
	err := s.db.GetDB().QueryRowContext(ctx,
		`SELECT id, alert_time, expected_total, current_total, missing, status, reason
		 FROM alert_logs WHERE status = 'sent' ORDER BY alert_time DESC LIMIT 1`,
	).Scan(&a.ID, &a.AlertTime, &a.ExpectedTotal, &a.CurrentTotal, &a.Missing, &status, &a.Reason)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last sent alert: %w", err)
	}
	a.Status = AlertStatus(status)
	return &a, nil
}
