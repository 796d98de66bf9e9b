package store

import (
	"context"
	"fmt"
	"time"
)

// Event is a single immutable gate crossing.
type Event struct {
	ID        int64
	EventTime time.Time
	Direction Direction
	CameraID  string
	CreatedAt time.Time
}

// AppendEvent normalizes direction to canonical upper-case IN/OUT, rejects
// anything else, and writes the crossing synchronously. The assigned row id
// is returned.
func (s *Store) AppendEvent(ctx context.Context, eventTime time.Time, direction Direction, cameraID string) (int64, error) {
	dir := Direction(normalizeDirection(string(direction)))
	if dir != DirectionIn && dir != DirectionOut {
		return 0, fmt.Errorf("invalid direction %q: must be IN or OUT", direction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.GetDB().ExecContext(ctx,
		`INSERT INTO events (event_time, direction, camera_id) VALUES (?, ?, ?)`,
		eventTime.UTC(), string(dir), cameraID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted event id: %w", err)
	}

	return id, nil
}

// EventsForDate returns every event whose event_time falls within the given
// calendar date (local midnight to midnight), ordered by time ascending.
func (s *Store) EventsForDate(ctx context.Context, date time.Time) ([]Event, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.Add(24 * time.Hour)
	return s.EventsInRange(ctx, start, end)
}

// EventsInRange returns every event with event_time in [start, end), ordered
// ascending.
func (s *Store) EventsInRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.GetDB().QueryContext(ctx,
		`SELECT id, event_time, direction, camera_id, created_at
		 FROM events
		 WHERE event_time >= ? AND event_time < ?
		 ORDER BY event_time ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var dir string
		if err := rows.Scan(&e.ID, &e.EventTime, &dir, &e.CameraID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Direction = Direction(dir)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountsSince returns the count of IN and OUT events with event_time in
// [since, now).
func (s *Store) CountsSince(ctx context.Context, since, now time.Time) (in, out int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.GetDB().QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN direction = 'IN' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'OUT' THEN 1 ELSE 0 END), 0)
		 FROM events
		 WHERE event_time >= ? AND event_time < ?`,
		since.UTC(), now.UTC(),
	)
	if err := row.Scan(&in, &out); err != nil {
		return 0, 0, fmt.Errorf("failed to count events: %w", err)
	}
	return in, out, nil
}

// normalizeDirection maps the lower-, upper- and title-case spellings of
// in/out to canonical IN/OUT so minor case variance never reaches the
// schema's CHECK constraint as an error path. Any other value, including one
// with surrounding whitespace, is returned unchanged.
func normalizeDirection(d string) string {
	switch d {
	case "in", "IN", "In":
		return "IN"
	case "out", "OUT", "Out":
		return "OUT"
	default:
		return d
	}
}
