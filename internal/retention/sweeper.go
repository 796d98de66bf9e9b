package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

var dailyFilePattern = regexp.MustCompile(`^people_counter_(\d{4}-\d{2}-\d{2})\.xlsx$`)

// Sweeper deletes per-day workbooks older than the configured retention
// window. The rolling summary file and any in-progress .tmp.xlsx file are
// never touched.
type Sweeper struct {
	dailyDir      string
	retentionDays int
	logger        *logger.Logger
}

// NewSweeper constructs a Sweeper operating on dailyDir.
func NewSweeper(dailyDir string, retentionDays int, log *logger.Logger) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Sweeper{dailyDir: dailyDir, retentionDays: retentionDays, logger: log}
}

// Run deletes every per-day workbook whose embedded date is older than
// today − retentionDays, and returns the list of files removed.
func (s *Sweeper) Run(today time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.dailyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list daily export directory: %w", err)
	}

	cutoff := today.AddDate(0, 0, -s.retentionDays)

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		m := dailyFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue // ignores .tmp.xlsx and the rolling summary file
		}

		fileDate, err := time.ParseInLocation("2006-01-02", m[1], today.Location())
		if err != nil {
			continue
		}

		if fileDate.Before(cutoff) {
			path := filepath.Join(s.dailyDir, entry.Name())
			if err := os.Remove(path); err != nil {
				if s.logger != nil {
					s.logger.Warn("failed to remove expired workbook", "path", path, "error", err)
				}
				continue
			}
			removed = append(removed, entry.Name())
		}
	}

	if s.logger != nil && len(removed) > 0 {
		s.logger.Info("retention sweep removed expired workbooks", "count", len(removed), "retention_days", s.retentionDays)
	}

	return removed, nil
}
