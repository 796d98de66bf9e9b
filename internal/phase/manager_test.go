package phase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangtvse170014/checkout/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "phase.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init())
	t.Cleanup(func() { st.Close() })

	clock := NewClock(DefaultBounds(), time.UTC)
	return NewManager(st, clock, nil, nil, nil), st
}

func TestTickResetsAtMorningCount(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))

	row, err := st.DailyState(ctx, day)
	require.NoError(t, err)
	assert.False(t, row.IsFrozen)
	assert.Equal(t, 0, row.TotalMorning)
}

func TestTickAccumulatesMorningTotal(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))

	_, err := st.AppendEvent(ctx, day.Add(time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	_, err = st.AppendEvent(ctx, day.Add(2*time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)

	require.NoError(t, m.Tick(ctx, day.Add(2*time.Hour+time.Minute)))

	row, err := st.DailyState(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, row.TotalMorning)
}

func TestTickFreezesAtMorningEnd(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	_, err := st.AppendEvent(ctx, day.Add(time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	_, err = st.AppendEvent(ctx, day.Add(time.Hour+time.Minute), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, day.Add(2*time.Hour)))

	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	row, err := st.DailyState(ctx, day)
	require.NoError(t, err)
	assert.True(t, row.IsFrozen)
	assert.Equal(t, 2, row.TotalMorning)

	// A later write attempt at the same phase must not change it.
	require.NoError(t, m.Tick(ctx, morningEnd.Add(time.Minute)))
	row2, err := st.DailyState(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, row2.TotalMorning)
}

func TestTickOpensAndClosesMissingPeriod(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	for i := 0; i < 3; i++ {
		_, err := st.AppendEvent(ctx, day.Add(time.Duration(i+1)*time.Hour), store.DirectionIn, "cam-1")
		require.NoError(t, err)
	}
	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	// One person leaves: baseline=2 (the 09:00 entry falls after morning
	// end), present=1, missing=1.
	_, err := st.AppendEvent(ctx, morningEnd.Add(time.Minute), store.DirectionOut, "cam-1")
	require.NoError(t, err)

	require.NoError(t, m.Tick(ctx, morningEnd.Add(2*time.Minute)))

	active, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 1, active.MissingCountObserved)

	// Running the tick again with no change must not alter start_time.
	firstStart := active.StartTime
	require.NoError(t, m.Tick(ctx, morningEnd.Add(5*time.Minute)))
	active2, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active2)
	assert.Equal(t, firstStart.Unix(), active2.StartTime.Unix())

	// Person returns: present=2, missing=0 -> period closes.
	_, err = st.AppendEvent(ctx, morningEnd.Add(6*time.Minute), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, morningEnd.Add(7*time.Minute)))

	closedActive, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, closedActive)
}

func TestTickIsIdempotentWithNoNewEvents(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	before, err := st.DailyState(ctx, day)
	require.NoError(t, err)

	require.NoError(t, m.Tick(ctx, morningEnd.Add(time.Minute)))
	require.NoError(t, m.Tick(ctx, morningEnd.Add(2*time.Minute)))

	after, err := st.DailyState(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, before.TotalMorning, after.TotalMorning)
	assert.Equal(t, before.IsFrozen, after.IsFrozen)
}

func TestLunchBreakLeavesOpenPeriodUntouched(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	_, err := st.AppendEvent(ctx, day.Add(time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	// Shortfall opens before lunch.
	_, err = st.AppendEvent(ctx, day.Add(4*time.Hour), store.DirectionOut, "cam-1") // 10:00
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, day.Add(5*time.Hour))) // 11:00
	active, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active)

	// Lunch tick must not touch it.
	require.NoError(t, m.Tick(ctx, day.Add(6*time.Hour))) // 12:00
	stillActive, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, stillActive)
	assert.Equal(t, active.StartTime.Unix(), stillActive.StartTime.Unix())
}

func TestDayCloseClosesOpenPeriod(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	_, err := st.AppendEvent(ctx, day.Add(time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	_, err = st.AppendEvent(ctx, day.Add(14*time.Hour), store.DirectionOut, "cam-1")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, day.Add(14*time.Hour+time.Minute)))

	active, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active)

	dayClose := day.Add(17*time.Hour + 59*time.Minute) // 23:59
	require.NoError(t, m.Tick(ctx, dayClose))

	closed, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	assert.Nil(t, closed)
}

// TestFirstTickBackdatesPreExistingShortfall covers the restart case: the
// very first tick this process ever runs lands mid-morning and immediately
// finds a shortfall it did not see begin, so start_time is anchored to the
// session's phase-start rather than now.
func TestFirstTickBackdatesPreExistingShortfall(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	_, err := st.AppendEvent(ctx, day.Add(time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	_, err = st.AppendEvent(ctx, day.Add(2*time.Hour), store.DirectionIn, "cam-1")
	require.NoError(t, err)
	require.NoError(t, st.UpsertDailyState(ctx, day, store.DailyStatePatch{
		TotalMorning: intPtr(2),
		IsFrozen:     boolPtr(true),
	}))
	_, err = st.AppendEvent(ctx, day.Add(3*time.Hour), store.DirectionOut, "cam-1") // 09:00
	require.NoError(t, err)

	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	firstTickAt := morningEnd.Add(45 * time.Minute)
	require.NoError(t, m.Tick(ctx, firstTickAt))

	active, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, morningEnd.Unix(), active.StartTime.Unix(), "first-ever tick backdates to phase-start")
}

// TestLaterGenuineShortfallIsNotBackdated covers the bug this fix closes: a
// restart with no shortfall, several clean ticks, and then a brand-new
// shortfall opening later in the same process must anchor to now, not to
// the session's phase-start.
func TestLaterGenuineShortfallIsNotBackdated(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)

	require.NoError(t, m.Tick(ctx, day))
	for i := 0; i < 3; i++ {
		_, err := st.AppendEvent(ctx, day.Add(time.Duration(i+1)*time.Hour), store.DirectionIn, "cam-1")
		require.NoError(t, err)
	}
	morningEnd := day.Add(2*time.Hour + 30*time.Minute) // 08:30
	require.NoError(t, m.Tick(ctx, morningEnd))

	// Several clean ticks pass with nobody missing.
	require.NoError(t, m.Tick(ctx, morningEnd.Add(10*time.Minute)))
	require.NoError(t, m.Tick(ctx, morningEnd.Add(20*time.Minute)))

	// Now, well after the first tick, a genuinely new shortfall opens.
	newShortfallTick := morningEnd.Add(30 * time.Minute)
	_, err := st.AppendEvent(ctx, newShortfallTick.Add(-time.Minute), store.DirectionOut, "cam-1")
	require.NoError(t, err)
	require.NoError(t, m.Tick(ctx, newShortfallTick))

	active, err := st.ActiveMissingPeriod(ctx, day)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, newShortfallTick.Unix(), active.StartTime.Unix(), "later shortfall anchors to now, not phase-start")
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

// TestDayResetTriggersExportForYesterday covers the exporter cadence
// requirement: a genuine daily reset must finalize the previous day's
// workbook, not today's.
func TestDayResetTriggersExportForYesterday(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "phase.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init())
	t.Cleanup(func() { st.Close() })
	clock := NewClock(DefaultBounds(), time.UTC)

	var gotDates []time.Time
	trigger := func(ctx context.Context, date time.Time) error {
		gotDates = append(gotDates, date)
		return nil
	}
	m := NewManager(st, clock, trigger, nil, nil)

	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)
	require.NoError(t, m.Tick(ctx, day))

	require.Len(t, gotDates, 1)
	assert.Equal(t, "2026-07-28", gotDates[0].Format("2006-01-02"), "reset exports the previous calendar day")
}

// TestPhaseTransitionTriggersExport covers the §4.5 "at each phase boundary"
// cadence: crossing from one named phase into another fires the trigger with
// now, but the very first tick never does (there is no prior phase to have
// crossed from).
func TestPhaseTransitionTriggersExport(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "phase.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Init())
	t.Cleanup(func() { st.Close() })
	clock := NewClock(DefaultBounds(), time.UTC)

	var triggerCount int
	trigger := func(ctx context.Context, date time.Time) error {
		triggerCount++
		return nil
	}
	m := NewManager(st, clock, trigger, nil, nil)

	ctx := context.Background()
	day := time.Date(2026, 7, 29, 6, 0, 0, 0, time.UTC)
	require.NoError(t, m.Tick(ctx, day))
	require.Equal(t, 1, triggerCount, "first tick's reset already triggered one export")

	// Same phase again: no new trigger.
	require.NoError(t, m.Tick(ctx, day.Add(time.Minute)))
	assert.Equal(t, 1, triggerCount, "no phase change, no additional export")

	// Cross the MORNING_COUNT -> REALTIME_MORNING boundary (08:30): a phase
	// boundary, must trigger.
	realtimeMorning := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.Tick(ctx, realtimeMorning))
	assert.Equal(t, 2, triggerCount, "crossing into realtime morning triggers an export")
}
