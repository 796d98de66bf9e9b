package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

var dailyFilePattern = regexp.MustCompile(`^people_counter_(\d{4}-\d{2}-\d{2})\.xlsx$`)

// RollingExporter produces a single summary workbook covering the most
// recent N per-day workbooks already on disk. It never reads the Store: the
// per-day files are the attested, operator-visible source of truth.
type RollingExporter struct {
	dailyDir   string
	summaryDir string
	windowDays int
	logger     *logger.Logger
}

// NewRollingExporter constructs a RollingExporter reading per-day workbooks
// from dailyDir and writing the rolling workbook into summaryDir.
func NewRollingExporter(dailyDir, summaryDir string, windowDays int, log *logger.Logger) *RollingExporter {
	if windowDays <= 0 {
		windowDays = 7
	}
	return &RollingExporter{dailyDir: dailyDir, summaryDir: summaryDir, windowDays: windowDays, logger: log}
}

// FileName returns the canonical rolling workbook filename for this
// exporter's configured window.
func (e *RollingExporter) FileName() string {
	return fmt.Sprintf("people_counter_LAST_%d_DAYS.xlsx", e.windowDays)
}

// SelectDates lists the dates of per-day workbooks present in dailyDir,
// ignoring temp files and the rolling file itself, sorted ascending, limited
// to the most recent windowDays.
func (e *RollingExporter) SelectDates() ([]string, error) {
	entries, err := os.ReadDir(e.dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list daily export directory: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := dailyFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		dates = append(dates, m[1])
	}

	sort.Strings(dates)

	if len(dates) > e.windowDays {
		dates = dates[len(dates)-e.windowDays:]
	}
	return dates, nil
}

// Run rebuilds the rolling workbook from whatever per-day workbooks are
// currently on disk.
func (e *RollingExporter) Run() (WriteOutcome, error) {
	if err := os.MkdirAll(e.summaryDir, 0755); err != nil {
		return WriteIOErr, fmt.Errorf("failed to create summary directory: %w", err)
	}

	dates, err := e.SelectDates()
	if err != nil {
		return WriteIOErr, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeDailySummary(f, dates); err != nil {
		return WriteIOErr, err
	}
	if err := e.writeDailyAlerts(f, dates); err != nil {
		return WriteIOErr, err
	}
	if err := e.writeDailyMissingPeriods(f, dates); err != nil {
		return WriteIOErr, err
	}

	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx != -1 {
		f.DeleteSheet("Sheet1")
	}

	destPath := filepath.Join(e.summaryDir, e.FileName())
	tmpPath := filepath.Join(e.summaryDir, fmt.Sprintf("people_counter_LAST_%d_DAYS.tmp.xlsx", e.windowDays))

	outcome, err := atomicSave(f, tmpPath, destPath)
	if err != nil {
		return outcome, err
	}
	if e.logger != nil {
		e.logger.Info("rolling export completed", "window_days", e.windowDays, "dates", len(dates), "outcome", string(outcome))
	}
	return outcome, nil
}

func (e *RollingExporter) openDaily(date string) (*excelize.File, error) {
	path := filepath.Join(e.dailyDir, fmt.Sprintf("people_counter_%s.xlsx", date))
	return excelize.OpenFile(path)
}

func (e *RollingExporter) writeDailySummary(f *excelize.File, dates []string) error {
	sheet := "DAILY_SUMMARY"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Date", "Total Morning", "Current Realtime", "Current Missing", "Max Realtime", "Min Realtime"}); err != nil {
		return err
	}

	for i, date := range dates {
		r := i + 2
		daily, err := e.openDaily(date)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("skipping unreadable daily workbook", "date", date, "error", err)
			}
			continue
		}

		totalMorning := cellString(daily, "SUMMARY", "B2")
		realtime := cellString(daily, "SUMMARY", "C2")
		missing := cellString(daily, "SUMMARY", "D2")
		maxR, minR := eventExtremes(daily)

		daily.Close()

		values := []interface{}{date, totalMorning, realtime, missing, maxR, minR}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, r)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write daily summary cell: %w", err)
			}
		}
	}
	return nil
}

func (e *RollingExporter) writeDailyAlerts(f *excelize.File, dates []string) error {
	sheet := "DAILY_ALERTS"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Date", "Alert Time", "Total Morning", "Realtime", "Missing"}); err != nil {
		return err
	}

	r := 2
	for _, date := range dates {
		daily, err := e.openDaily(date)
		if err != nil {
			continue
		}
		rows, err := daily.GetRows("ALERTS")
		if err == nil {
			for i, row := range rows {
				if i == 0 || len(row) < 4 {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(1, r)
				f.SetCellValue(sheet, cell, date)
				for j, v := range row {
					c, _ := excelize.CoordinatesToCellName(j+2, r)
					f.SetCellValue(sheet, c, v)
				}
				r++
			}
		}
		daily.Close()
	}
	return nil
}

func (e *RollingExporter) writeDailyMissingPeriods(f *excelize.File, dates []string) error {
	sheet := "DAILY_MISSING_PERIODS"
	f.NewSheet(sheet)
	if err := writeHeader(f, sheet, []string{"Date", "Start Time", "End Time", "Duration Minutes"}); err != nil {
		return err
	}

	r := 2
	for _, date := range dates {
		daily, err := e.openDaily(date)
		if err != nil {
			continue
		}
		rows, err := daily.GetRows("MISSING_PERIODS")
		if err == nil {
			for i, row := range rows {
				if i == 0 || len(row) < 1 {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(1, r)
				f.SetCellValue(sheet, cell, date)
				for j, v := range row {
					c, _ := excelize.CoordinatesToCellName(j+2, r)
					f.SetCellValue(sheet, c, v)
				}
				r++
			}
		}
		daily.Close()
	}
	return nil
}

func cellString(f *excelize.File, sheet, cell string) string {
	v, err := f.GetCellValue(sheet, cell)
	if err != nil {
		return ""
	}
	return v
}

// eventExtremes computes a running max/min of realtime occupancy across the
// day's EVENTS sheet by replaying direction deltas in order.
func eventExtremes(f *excelize.File) (max, min int) {
	rows, err := f.GetRows("EVENTS")
	if err != nil || len(rows) <= 1 {
		return 0, 0
	}

	present := 0
	for i, row := range rows {
		if i == 0 || len(row) < 2 {
			continue
		}
		switch row[1] {
		case "IN":
			present++
		case "OUT":
			present--
		}
		if present > max {
			max = present
		}
		if i == 1 || present < min {
			min = present
		}
	}
	return max, min
}
