package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DailyStateRow is one calendar date's accumulated baseline and realtime
// counters.
type DailyStateRow struct {
	Date         string
	TotalMorning int
	IsFrozen     bool
	RealtimeIn   int
	RealtimeOut  int
	UpdatedAt    time.Time
}

// DailyStatePatch carries the subset of fields a caller wants to merge into
// an existing (or newly created) DailyState row. Nil fields are left
// untouched.
type DailyStatePatch struct {
	TotalMorning *int
	IsFrozen     *bool
	RealtimeIn   *int
	RealtimeOut  *int
}

// UpsertDailyState merges patch into the row for date, creating it first if
// necessary. Once is_frozen is true for a date, further writes to
// TotalMorning are silently ignored — the morning baseline for that date is
// fixed for good.
func (s *Store) UpsertDailyState(ctx context.Context, date time.Time, patch DailyStatePatch) error {
	key := dateKey(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.GetDB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin daily state transaction: %w", err)
	}
	defer tx.Rollback()

	var existing DailyStateRow
	var isFrozenInt int
	err = tx.QueryRowContext(ctx,
		`SELECT date, total_morning, is_frozen, realtime_in, realtime_out, updated_at
		 FROM daily_state WHERE date = ?`, key,
	).Scan(&existing.Date, &existing.TotalMorning, &isFrozenInt, &existing.RealtimeIn, &existing.RealtimeOut, &existing.UpdatedAt)

	found := true
	if err == sql.ErrNoRows {
		found = false
	} else if err != nil {
		return fmt.Errorf("failed to read daily state: %w", err)
	}
	existing.IsFrozen = isFrozenInt != 0

	if !found {
		existing = DailyStateRow{Date: key}
	}

	if patch.TotalMorning != nil && !existing.IsFrozen {
		existing.TotalMorning = *patch.TotalMorning
	}
	if patch.IsFrozen != nil {
		existing.IsFrozen = *patch.IsFrozen
	}
	if patch.RealtimeIn != nil {
		existing.RealtimeIn = *patch.RealtimeIn
	}
	if patch.RealtimeOut != nil {
		existing.RealtimeOut = *patch.RealtimeOut
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_state (date, total_morning, is_frozen, realtime_in, realtime_out, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(date) DO UPDATE SET
			total_morning = excluded.total_morning,
			is_frozen = excluded.is_frozen,
			realtime_in = excluded.realtime_in,
			realtime_out = excluded.realtime_out,
			updated_at = CURRENT_TIMESTAMP`,
		key, existing.TotalMorning, existing.IsFrozen, existing.RealtimeIn, existing.RealtimeOut,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily state: %w", err)
	}

	return tx.Commit()
}

// DailyState returns the row for date, or a zero-value row with Date set and
// everything else at its default if no row exists yet.
func (s *Store) DailyState(ctx context.Context, date time.Time) (DailyStateRow, error) {
	key := dateKey(date)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var row DailyStateRow
	var isFrozenInt int
	err := s.db.GetDB().QueryRowContext(ctx,
		`SELECT date, total_morning, is_frozen, realtime_in, realtime_out, updated_at
		 FROM daily_state WHERE date = ?`, key,
	).Scan(&row.Date, &row.TotalMorning, &isFrozenInt, &row.RealtimeIn, &row.RealtimeOut, &row.UpdatedAt)

	if err == sql.ErrNoRows {
		return DailyStateRow{Date: key}, nil
	}
	if err != nil {
		return DailyStateRow{}, fmt.Errorf("failed to read daily state: %w", err)
	}
	row.IsFrozen = isFrozenInt != 0
	return row, nil
}
