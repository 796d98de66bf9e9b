package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/phase"
	"github.com/hoangtvse170014/checkout/internal/service"
	"github.com/hoangtvse170014/checkout/internal/store"
)

// FirstAlertDelay is the single, canonical gate used everywhere a
// first-alert duration threshold is needed: 30 minutes plus 30 seconds.
const FirstAlertDelay = 1830 * time.Second

// CooldownWindow bounds how often a sent alert repeats for an unchanged
// shortfall.
const CooldownWindow = 30 * time.Minute

// Sender dispatches a composed alert message. Implementations wrap SMTP (or,
// in tests, record calls without sending anything).
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Manager evaluates, on each tick, whether today's active shortfall warrants
// a new alert, and records the outcome of every evaluation whether or not a
// message was actually sent.
type Manager struct {
	store         *store.Store
	clock         phase.Clock
	sender        Sender
	logger        *logger.Logger
	bus           *service.EventBus
	enabled       bool
	subjectPrefix string
}

// NewManager constructs an AlertManager. enabled mirrors the configuration
// toggle; when false, every tick is logged skipped(reason=disabled) and
// sender is never invoked. subjectPrefix is prepended to every composed
// subject line; callers typically pass the configured SMTP subject line.
func NewManager(st *store.Store, clock phase.Clock, sender Sender, enabled bool, subjectPrefix string, log *logger.Logger, bus *service.EventBus) *Manager {
	return &Manager{store: st, clock: clock, sender: sender, enabled: enabled, subjectPrefix: subjectPrefix, logger: log, bus: bus}
}

// Tick evaluates the alert decision for instant now and records the outcome.
func (m *Manager) Tick(ctx context.Context, now time.Time) error {
	if !m.enabled {
		return m.skip(ctx, now, 0, 0, 0, "disabled")
	}

	currentPhase := m.clock.At(now)
	if !phase.AlertsEnabled(currentPhase) {
		return m.skip(ctx, now, 0, 0, 0, "phase")
	}

	active, err := m.store.ActiveMissingPeriod(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to read active missing period: %w", err)
	}
	if active == nil {
		return m.skip(ctx, now, 0, 0, 0, "no_missing")
	}

	row, err := m.store.DailyState(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to read daily state: %w", err)
	}

	dayStart := m.clock.PhaseStartTime(phaseMorning, now)
	in, out, err := m.store.CountsSince(ctx, dayStart, now)
	if err != nil {
		return fmt.Errorf("failed to read counts: %w", err)
	}
	present := in - out
	missing := active.MissingCountObserved

	duration := now.Sub(active.StartTime)
	if duration < FirstAlertDelay {
		return m.skip(ctx, now, row.TotalMorning, present, missing, "duration<30.5m")
	}

	last, err := m.store.LastSentAlert(ctx)
	if err != nil {
		return fmt.Errorf("failed to read last sent alert: %w", err)
	}
	if last != nil && now.Sub(last.AlertTime) <= CooldownWindow && last.Missing == missing {
		return m.skip(ctx, now, row.TotalMorning, present, missing, "cooldown")
	}

	subject, body := composeMessage(m.subjectPrefix, now, row.TotalMorning, present, missing, active)

	sendErr := m.sender.Send(ctx, subject, body)
	if sendErr != nil {
		if _, err := m.store.AppendAlert(ctx, store.AlertLog{
			AlertTime:     now,
			ExpectedTotal: row.TotalMorning,
			CurrentTotal:  present,
			Missing:       missing,
			Status:        store.AlertStatusFailed,
			Reason:        sendErr.Error(),
		}); err != nil {
			return fmt.Errorf("failed to record failed alert: %w", err)
		}
		if m.logger != nil {
			m.logger.Warn("alert dispatch failed", "error", sendErr)
		}
		return nil
	}

	if _, err := m.store.AppendAlert(ctx, store.AlertLog{
		AlertTime:     now,
		ExpectedTotal: row.TotalMorning,
		CurrentTotal:  present,
		Missing:       missing,
		Status:        store.AlertStatusSent,
	}); err != nil {
		return fmt.Errorf("failed to record sent alert: %w", err)
	}

	m.publish(service.EventTypeAlertSent, map[string]interface{}{"missing": missing, "present": present})
	if m.logger != nil {
		m.logger.Info("alert sent", "missing", missing, "present", present, "total_morning", row.TotalMorning)
	}
	return nil
}

func (m *Manager) skip(ctx context.Context, now time.Time, expected, current, missing int, reason string) error {
	if _, err := m.store.AppendAlert(ctx, store.AlertLog{
		AlertTime:     now,
		ExpectedTotal: expected,
		CurrentTotal:  current,
		Missing:       missing,
		Status:        store.AlertStatusSkipped,
		Reason:        reason,
	}); err != nil {
		return fmt.Errorf("failed to record skipped alert: %w", err)
	}
	m.publish(service.EventTypeAlertSkipped, map[string]interface{}{"reason": reason})
	return nil
}

func (m *Manager) publish(eventType service.EventType, data map[string]interface{}) {
	if m.bus != nil {
		m.bus.Publish(service.Event{Type: eventType, Source: "alert.manager", Data: data})
	}
}

// phaseMorning names the phase used to anchor "day start" for present-count
// purposes; defined locally to avoid importing phase's Name constants twice
// under two names.
const phaseMorning = phase.MorningCount

func composeMessage(subjectPrefix string, now time.Time, totalMorning, present, missing int, active *store.MissingPeriod) (subject, body string) {
	if subjectPrefix == "" {
		subjectPrefix = "[gate-occupancy]"
	}
	duration := now.Sub(active.StartTime)
	subject = fmt.Sprintf("%s %s - %d missing", subjectPrefix, now.Format("2006-01-02"), missing)
	body = fmt.Sprintf(
		"Date: %s\nTime: %s\nTotal morning baseline: %d\nPresent: %d\nMissing: %d\nShortfall started: %s\nDuration: %s\n",
		now.Format("2006-01-02"),
		now.Format(time.RFC3339),
		totalMorning,
		present,
		missing,
		active.StartTime.Format(time.RFC3339),
		duration.Round(time.Minute),
	)
	return subject, body
}
