package phase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/service"
	"github.com/hoangtvse170014/checkout/internal/store"
)

// ExportTrigger runs a daily+rolling export pass for date. PhaseManager
// invokes it on a day reset (with yesterday's date, to finalize the
// just-closed day's workbook) and on every phase boundary crossing (with
// now), on top of the exporter's own fixed-interval cadence.
type ExportTrigger func(ctx context.Context, date time.Time) error

// Manager drives the daily phase lifecycle: reset, morning accumulation,
// baseline freeze, and missing-period bookkeeping. Every tick recomputes from
// the Store rather than trusting in-process memory, so a missed or repeated
// tick is always safe.
type Manager struct {
	store         *store.Store
	clock         Clock
	exportTrigger ExportTrigger
	logger        *logger.Logger
	bus           *service.EventBus

	mu        sync.Mutex
	hasTicked bool // true once Tick has completed its first invocation on this instance
	lastPhase Name // phase observed on the previous tick; "" before the first tick
}

// NewManager constructs a PhaseManager bound to st, evaluating phases with
// clock. exportTrigger may be nil, in which case day resets and phase
// boundaries drive no export (the exporter's own ticker cadence still runs).
func NewManager(st *store.Store, clock Clock, exportTrigger ExportTrigger, log *logger.Logger, bus *service.EventBus) *Manager {
	return &Manager{store: st, clock: clock, exportTrigger: exportTrigger, logger: log, bus: bus}
}

// Tick advances phase bookkeeping for instant now. Safe to call more than
// once for the same instant, and safe to call after any gap.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	phaseName := m.clock.At(now)
	isFirstTick, phaseChanged := m.observeTick(phaseName)
	if phaseChanged {
		m.triggerExport(ctx, now)
	}

	switch phaseName {
	case MorningCount:
		if err := m.ensureReset(ctx, now); err != nil {
			return fmt.Errorf("daily reset failed: %w", err)
		}
		if err := m.recomputeMorningTotal(ctx, now); err != nil {
			return fmt.Errorf("morning recompute failed: %w", err)
		}

	case RealtimeMorning, AfternoonMonitoring:
		if err := m.ensureFrozen(ctx, now); err != nil {
			return fmt.Errorf("baseline freeze failed: %w", err)
		}
		if err := m.evaluateMissingPeriod(ctx, now, phaseName, isFirstTick); err != nil {
			return fmt.Errorf("missing period evaluation failed: %w", err)
		}

	case LunchBreak:
		// No baseline writes, no missing-period evaluation: an open period
		// simply ages without being touched until AFTERNOON_MONITORING.

	case DayClose:
		if err := m.ensureDayClose(ctx, now); err != nil {
			return fmt.Errorf("day close failed: %w", err)
		}
	}

	return nil
}

func (m *Manager) ensureReset(ctx context.Context, now time.Time) error {
	row, err := m.store.DailyState(ctx, now)
	if err != nil {
		return err
	}
	if row.UpdatedAt.IsZero() {
		zero := 0
		frozen := false
		if err := m.store.UpsertDailyState(ctx, now, store.DailyStatePatch{
			TotalMorning: &zero,
			IsFrozen:     &frozen,
			RealtimeIn:   &zero,
			RealtimeOut:  &zero,
		}); err != nil {
			return err
		}
		m.publish(service.EventTypePhaseChanged, map[string]interface{}{"phase": string(MorningCount), "date": dateKey(now)})
		if m.logger != nil {
			m.logger.Info("daily reset", "date", dateKey(now))
		}
		m.triggerExport(ctx, m.clock.PhaseStartTime(MorningCount, now).AddDate(0, 0, -1))
	}
	return nil
}

// triggerExport runs the configured ExportTrigger for date, logging (not
// propagating) any failure: a missed on-demand export is recovered by the
// exporter's own fixed-interval cadence, so it must never fail phase
// bookkeeping.
func (m *Manager) triggerExport(ctx context.Context, date time.Time) {
	if m.exportTrigger == nil {
		return
	}
	if err := m.exportTrigger(ctx, date); err != nil {
		if m.logger != nil {
			m.logger.Warn("on-demand export failed", "date", dateKey(date), "error", err)
		}
		return
	}
	if m.logger != nil {
		m.logger.Info("on-demand export completed", "date", dateKey(date))
	}
}

func (m *Manager) recomputeMorningTotal(ctx context.Context, now time.Time) error {
	row, err := m.store.DailyState(ctx, now)
	if err != nil {
		return err
	}
	if row.IsFrozen {
		return nil
	}

	resetTime := m.clock.PhaseStartTime(MorningCount, now)
	in, out, err := m.store.CountsSince(ctx, resetTime, now)
	if err != nil {
		return err
	}

	total := in - out
	if total < 0 {
		total = 0
	}
	return m.store.UpsertDailyState(ctx, now, store.DailyStatePatch{TotalMorning: &total})
}

func (m *Manager) ensureFrozen(ctx context.Context, now time.Time) error {
	row, err := m.store.DailyState(ctx, now)
	if err != nil {
		return err
	}
	if row.IsFrozen {
		return nil
	}

	baseline := row.TotalMorning
	if baseline == 0 {
		resetTime := m.clock.PhaseStartTime(MorningCount, now)
		morningEnd := m.clock.PhaseStartTime(RealtimeMorning, now)
		in, out, err := m.store.CountsSince(ctx, resetTime, morningEnd)
		if err != nil {
			return err
		}
		recomputed := in - out
		if recomputed < 0 {
			recomputed = 0
		}
		baseline = recomputed
	}

	frozen := true
	if err := m.store.UpsertDailyState(ctx, now, store.DailyStatePatch{TotalMorning: &baseline, IsFrozen: &frozen}); err != nil {
		return err
	}
	m.publish(service.EventTypeBaselineFrozen, map[string]interface{}{"date": dateKey(now), "total_morning": baseline})
	if m.logger != nil {
		m.logger.Info("baseline frozen", "date", dateKey(now), "total_morning", baseline)
	}
	return nil
}

func (m *Manager) evaluateMissingPeriod(ctx context.Context, now time.Time, currentPhase Name, isFirstTick bool) error {
	row, err := m.store.DailyState(ctx, now)
	if err != nil {
		return err
	}

	baseline := row.TotalMorning
	if baseline == 0 {
		resetTime := m.clock.PhaseStartTime(MorningCount, now)
		morningEnd := m.clock.PhaseStartTime(RealtimeMorning, now)
		in, out, err := m.store.CountsSince(ctx, resetTime, morningEnd)
		if err != nil {
			return err
		}
		recomputed := in - out
		if recomputed < 0 {
			recomputed = 0
		}
		baseline = recomputed
	}

	dayStart := m.clock.PhaseStartTime(MorningCount, now)
	in, out, err := m.store.CountsSince(ctx, dayStart, now)
	if err != nil {
		return err
	}
	present := in - out
	missing := baseline - present
	if missing < 0 {
		missing = 0
	}

	active, err := m.store.ActiveMissingPeriod(ctx, now)
	if err != nil {
		return err
	}

	switch {
	case missing > 0 && active == nil:
		startTime := now
		if isFirstTick {
			startTime = m.clock.PhaseStartTime(currentPhase, now)
		}
		id, err := m.store.OpenMissingPeriod(ctx, now, Session(currentPhase), startTime)
		if err != nil {
			return err
		}
		if err := m.store.UpdateMissingPeriod(ctx, id, missing); err != nil {
			return err
		}
		m.publish(service.EventTypeMissingOpened, map[string]interface{}{"date": dateKey(now), "missing": missing, "start_time": startTime})
		if m.logger != nil {
			m.logger.Info("missing period opened", "date", dateKey(now), "missing", missing, "start_time", startTime)
		}

	case missing > 0 && active != nil:
		if err := m.store.UpdateMissingPeriod(ctx, active.ID, missing); err != nil {
			return err
		}

	case missing == 0 && active != nil:
		if err := m.store.CloseMissingPeriod(ctx, active.ID, now); err != nil {
			return err
		}
		m.publish(service.EventTypeMissingClosed, map[string]interface{}{"date": dateKey(now), "id": active.ID})
		if m.logger != nil {
			m.logger.Info("missing period closed", "date", dateKey(now), "id", active.ID)
		}
	}

	return nil
}

// Session maps a phase to the MissingPeriod session label.
func Session(p Name) store.Session {
	if SessionForPhase(p) == "afternoon" {
		return store.SessionAfternoon
	}
	return store.SessionMorning
}

// observeTick reports whether phaseName is the very first phase observed by
// this Manager instance (isFirstTick) and whether it differs from the phase
// observed on the previous tick (phaseChanged), then records phaseName as
// the new lastPhase. Only the first tick after process start can have
// observed an already-present shortfall it didn't see begin; anchoring that
// one open to the current session's phase-start (instead of now) keeps
// duration accurate across a restart. Every later tick, whether or not it
// has opened a period yet, anchors any new open to now. phaseChanged is
// always false on the first tick: there is no prior phase to have crossed
// from.
func (m *Manager) observeTick(phaseName Name) (isFirstTick, phaseChanged bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	isFirstTick = !m.hasTicked
	phaseChanged = m.hasTicked && m.lastPhase != phaseName
	m.hasTicked = true
	m.lastPhase = phaseName
	return isFirstTick, phaseChanged
}

func (m *Manager) ensureDayClose(ctx context.Context, now time.Time) error {
	active, err := m.store.ActiveMissingPeriod(ctx, now)
	if err != nil {
		return err
	}
	if active != nil {
		if err := m.store.CloseMissingPeriod(ctx, active.ID, now); err != nil {
			return err
		}
		if m.logger != nil {
			m.logger.Info("missing period closed at day close", "date", dateKey(now), "id", active.ID)
		}
	}
	m.publish(service.EventTypePhaseChanged, map[string]interface{}{"phase": string(DayClose), "date": dateKey(now)})
	return nil
}

func (m *Manager) publish(eventType service.EventType, data map[string]interface{}) {
	if m.bus != nil {
		m.bus.Publish(service.Event{Type: eventType, Source: "phase.manager", Data: data})
	}
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
