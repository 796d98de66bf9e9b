package phase

import "time"

// Name identifies one of the five operating phases of a day.
type Name string

const (
	MorningCount        Name = "MORNING_COUNT"
	RealtimeMorning     Name = "REALTIME_MORNING"
	LunchBreak          Name = "LUNCH_BREAK"
	AfternoonMonitoring Name = "AFTERNOON_MONITORING"
	DayClose            Name = "DAY_CLOSE"
)

// Bounds are the wall-clock boundaries between phases, all on the same
// calendar day and in the same location.
type Bounds struct {
	ResetTime      time.Duration // offset from local midnight, e.g. 6h for 06:00
	MorningEnd     time.Duration // e.g. 8h30m
	LunchStart     time.Duration // e.g. 11h55m
	AfternoonStart time.Duration // e.g. 13h15m
	DayCloseTime   time.Duration // e.g. 23h59m
}

// DefaultBounds matches the decided defaults: 06:00 reset, 08:30 morning end,
// 11:55 lunch start, 13:15 afternoon start, 23:59 day close.
func DefaultBounds() Bounds {
	return Bounds{
		ResetTime:      6 * time.Hour,
		MorningEnd:     8*time.Hour + 30*time.Minute,
		LunchStart:     11*time.Hour + 55*time.Minute,
		AfternoonStart: 13*time.Hour + 15*time.Minute,
		DayCloseTime:   23*time.Hour + 59*time.Minute,
	}
}

// Clock is a pure function of wall clock plus Bounds: given a timestamp, it
// reports which phase that instant falls in. It holds no state of its own.
type Clock struct {
	bounds Bounds
	loc    *time.Location
}

// NewClock builds a Clock evaluating instants in loc using bounds. A nil loc
// defaults to time.Local.
func NewClock(bounds Bounds, loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{bounds: bounds, loc: loc}
}

// At returns the phase containing instant t.
func (c Clock) At(t time.Time) Name {
	t = t.In(c.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
	offset := t.Sub(midnight)

	switch {
	case offset < c.bounds.ResetTime:
		return DayClose // before today's reset, still logically closing out yesterday
	case offset < c.bounds.MorningEnd:
		return MorningCount
	case offset < c.bounds.LunchStart:
		return RealtimeMorning
	case offset < c.bounds.AfternoonStart:
		return LunchBreak
	case offset < c.bounds.DayCloseTime:
		return AfternoonMonitoring
	default:
		return DayClose
	}
}

// SessionForPhase returns which half of the day (for MissingPeriod.Session) the
// given phase belongs to. Only meaningful for the two alerting phases.
func SessionForPhase(p Name) string {
	if p == AfternoonMonitoring {
		return "afternoon"
	}
	return "morning"
}

// AlertsEnabled reports whether AlertManager should evaluate on a tick
// falling in phase p.
func AlertsEnabled(p Name) bool {
	return p == RealtimeMorning || p == AfternoonMonitoring
}

// BaselineWritable reports whether PhaseManager may still update
// total_morning during phase p.
func BaselineWritable(p Name) bool {
	return p == MorningCount
}

// PhaseStartTime returns the wall-clock instant at which phase p begins on
// the calendar date of reference t, used to anchor a restart-discovered
// MissingPeriod to its conservative (earliest) bound.
func (c Clock) PhaseStartTime(p Name, reference time.Time) time.Time {
	reference = reference.In(c.loc)
	midnight := time.Date(reference.Year(), reference.Month(), reference.Day(), 0, 0, 0, 0, c.loc)

	var offset time.Duration
	switch p {
	case RealtimeMorning:
		offset = c.bounds.MorningEnd
	case AfternoonMonitoring:
		offset = c.bounds.AfternoonStart
	default:
		offset = c.bounds.ResetTime
	}
	return midnight.Add(offset)
}
