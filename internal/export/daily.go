package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/phase"
	"github.com/hoangtvse170014/checkout/internal/store"
)

// DailyExporter produces one workbook per calendar date, built entirely from
// Store reads.
type DailyExporter struct {
	store  *store.Store
	clock  phase.Clock
	dir    string
	logger *logger.Logger
}

// NewDailyExporter constructs a DailyExporter writing into dir.
func NewDailyExporter(st *store.Store, clock phase.Clock, dir string, log *logger.Logger) *DailyExporter {
	return &DailyExporter{store: st, clock: clock, dir: dir, logger: log}
}

// FileName returns the canonical filename for date.
func FileName(date time.Time) string {
	return fmt.Sprintf("people_counter_%s.xlsx", date.Format("2006-01-02"))
}

// Run builds and atomically writes the workbook for date.
func (e *DailyExporter) Run(ctx context.Context, date time.Time) (WriteOutcome, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return WriteIOErr, fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSummary(ctx, f, date); err != nil {
		return WriteIOErr, err
	}
	if err := e.writeMissingPeriods(ctx, f, date); err != nil {
		return WriteIOErr, err
	}
	if err := e.writeAlerts(ctx, f, date); err != nil {
		return WriteIOErr, err
	}
	if err := e.writeEvents(ctx, f, date); err != nil {
		return WriteIOErr, err
	}

	// excelize creates "Sheet1" by default; drop it once our sheets exist.
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx != -1 {
		f.DeleteSheet("Sheet1")
	}

	destPath := filepath.Join(e.dir, FileName(date))
	tmpPath := filepath.Join(e.dir, fmt.Sprintf("people_counter_%s.tmp.xlsx", date.Format("2006-01-02")))

	outcome, err := atomicSave(f, tmpPath, destPath)
	if err != nil {
		return outcome, err
	}

	if e.logger != nil {
		e.logger.Info("daily export completed", "date", date.Format("2006-01-02"), "outcome", string(outcome))
	}
	return outcome, nil
}

func (e *DailyExporter) writeSummary(ctx context.Context, f *excelize.File, date time.Time) error {
	sheet := "SUMMARY"
	f.NewSheet(sheet)

	if err := writeHeader(f, sheet, []string{"Date", "Total Morning", "Current Realtime", "Current Missing", "Last Updated"}); err != nil {
		return err
	}

	row, err := e.store.DailyState(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to read daily state: %w", err)
	}

	baseline := row.TotalMorning
	if !row.IsFrozen || baseline == 0 {
		resetTime := e.clock.PhaseStartTime(phase.MorningCount, date)
		morningEnd := e.clock.PhaseStartTime(phase.RealtimeMorning, date)
		in, out, err := e.store.CountsSince(ctx, resetTime, morningEnd)
		if err != nil {
			return fmt.Errorf("failed to recompute baseline: %w", err)
		}
		recomputed := in - out
		if recomputed < 0 {
			recomputed = 0
		}
		baseline = recomputed
	}

	resetTime := e.clock.PhaseStartTime(phase.MorningCount, date)
	// A past date's realtime window ends at the next day's reset.
	end := time.Now()
	if dayEnd := resetTime.AddDate(0, 0, 1); end.After(dayEnd) {
		end = dayEnd
	}
	in, out, err := e.store.CountsSince(ctx, resetTime, end)
	if err != nil {
		return fmt.Errorf("failed to compute realtime totals: %w", err)
	}
	realtime := in - out
	missing := baseline - realtime
	if missing < 0 {
		missing = 0
	}

	values := []interface{}{date.Format("2006-01-02"), baseline, realtime, missing, time.Now().Format(time.RFC3339)}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to write summary cell: %w", err)
		}
	}
	return nil
}

func (e *DailyExporter) writeMissingPeriods(ctx context.Context, f *excelize.File, date time.Time) error {
	sheet := "MISSING_PERIODS"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Start Time", "End Time", "Duration Minutes"}); err != nil {
		return err
	}

	periods, err := e.store.MissingPeriodsForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to read missing periods: %w", err)
	}

	for i, p := range periods {
		r := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", r), p.StartTime.Format(time.RFC3339)); err != nil {
			return err
		}
		endStr := ""
		if p.EndTime.Valid {
			endStr = p.EndTime.Time.Format(time.RFC3339)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", r), endStr); err != nil {
			return err
		}
		duration := 0.0
		if p.DurationMinutes.Valid {
			duration = p.DurationMinutes.Float64
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("C%d", r), duration); err != nil {
			return err
		}
	}
	return nil
}

func (e *DailyExporter) writeAlerts(ctx context.Context, f *excelize.File, date time.Time) error {
	sheet := "ALERTS"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Alert Time", "Total Morning", "Realtime", "Missing"}); err != nil {
		return err
	}

	logs, err := e.store.AlertsForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to read alert logs: %w", err)
	}

	r := 2
	for _, l := range logs {
		if l.Status != store.AlertStatusSent {
			continue
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", r), l.AlertTime.Format(time.RFC3339)); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", r), l.ExpectedTotal); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("C%d", r), l.CurrentTotal); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("D%d", r), l.Missing); err != nil {
			return err
		}
		r++
	}
	return nil
}

func (e *DailyExporter) writeEvents(ctx context.Context, f *excelize.File, date time.Time) error {
	sheet := "EVENTS"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Event Time", "Direction", "Camera ID"}); err != nil {
		return err
	}

	events, err := e.store.EventsForDate(ctx, date)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	for i, ev := range events {
		r := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", r), ev.EventTime.Format(time.RFC3339)); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", r), string(ev.Direction)); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("C%d", r), ev.CameraID); err != nil {
			return err
		}
	}
	return nil
}
