package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseChecker checks the store's SQLite connectivity
type DatabaseChecker struct {
	dbPath string
}

func NewDatabaseChecker(dbPath string) *DatabaseChecker {
	return &DatabaseChecker{dbPath: dbPath}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.dbPath == "" {
		check.Status = StatusDegraded
		check.Message = "database path not configured"
		return check
	}

	if _, err := os.Stat(c.dbPath); os.IsNotExist(err) {
		check.Status = StatusHealthy
		check.Message = "database file will be created on first use"
		check.Details["file_exists"] = false
		return check
	}

	db, err := sql.Open("sqlite3", c.dbPath)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("failed to open database: %v", err)
		return check
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "database connection OK"
	check.Details["file_exists"] = true

	return check
}

// DetectorServiceChecker checks reachability of the external detector service
type DetectorServiceChecker struct {
	serviceURL string
	client     *http.Client
}

func NewDetectorServiceChecker(serviceURL string) *DetectorServiceChecker {
	return &DetectorServiceChecker{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *DetectorServiceChecker) Name() string {
	return "detector_service"
}

func (c *DetectorServiceChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.serviceURL == "" {
		check.Status = StatusDegraded
		check.Message = "detector service URL not configured"
		return check
	}

	healthURL := fmt.Sprintf("%s/health", c.serviceURL)
	req, err := http.NewRequestWithContext(ctx, "GET", healthURL, nil)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("failed to create request: %v", err)
		return check
	}

	resp, err := c.client.Do(req)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("detector service unreachable: %v", err)
		check.Details["url"] = c.serviceURL
		return check
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("detector service returned status %d", resp.StatusCode)
		check.Details["status_code"] = resp.StatusCode
		return check
	}

	check.Status = StatusHealthy
	check.Message = "detector service is reachable"
	check.Details["url"] = c.serviceURL
	check.Details["status_code"] = resp.StatusCode

	return check
}

// ExportChecker creates the daily and rolling export directories if they are
// missing and reports unhealthy if it cannot; write permission on an existing
// directory is not tested
type ExportChecker struct {
	dailyDir   string
	summaryDir string
}

func NewExportChecker(dailyDir, summaryDir string) *ExportChecker {
	return &ExportChecker{dailyDir: dailyDir, summaryDir: summaryDir}
}

func (c *ExportChecker) Name() string {
	return "export"
}

func (c *ExportChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.dailyDir != "" {
		if err := os.MkdirAll(c.dailyDir, 0755); err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("failed to create daily export directory: %v", err)
			return check
		}
		check.Details["daily_dir"] = c.dailyDir
	}

	if c.summaryDir != "" {
		if err := os.MkdirAll(c.summaryDir, 0755); err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("failed to create summary export directory: %v", err)
			return check
		}
		check.Details["summary_dir"] = c.summaryDir
	}

	check.Status = StatusHealthy
	check.Message = "export directories accessible"

	return check
}

// CameraChecker reports whether the camera source most recently delivered a
// frame within the expected poll cadence.
type CameraChecker struct {
	lastFrameAt func() (time.Time, bool)
	maxAge      time.Duration
}

func NewCameraChecker(lastFrameAt func() (time.Time, bool), maxAge time.Duration) *CameraChecker {
	return &CameraChecker{lastFrameAt: lastFrameAt, maxAge: maxAge}
}

func (c *CameraChecker) Name() string {
	return "camera"
}

func (c *CameraChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	ts, connected := c.lastFrameAt()
	if !connected {
		check.Status = StatusUnhealthy
		check.Message = "camera has not delivered a frame yet"
		return check
	}

	age := time.Since(ts)
	check.Details["last_frame_age"] = age.String()

	if age > c.maxAge {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("last frame is %s old, exceeds %s", age, c.maxAge)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "camera frames flowing"
	return check
}
