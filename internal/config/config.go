package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single YAML document that configures every component of the
// gate-occupancy monitor.
type Config struct {
	Log      LogConfig      `yaml:"log,omitempty"`
	Service  ServiceConfig  `yaml:"service"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Gate     GateConfig     `yaml:"gate"`
	Phase    PhaseConfig    `yaml:"phase"`
	Alert    AlertConfig    `yaml:"alert"`
	Storage  StorageConfig  `yaml:"storage"`
	Export   ExportConfig   `yaml:"export"`
	SMTP     SMTPConfig     `yaml:"smtp"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ServiceConfig contains process-wide settings.
type ServiceConfig struct {
	DataDir         string        `yaml:"data_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StatusAddr      string        `yaml:"status_addr"`
}

// CameraConfig describes the single RTSP camera this process monitors.
type CameraConfig struct {
	ID                string        `yaml:"id"`
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	JPEGQuality       int           `yaml:"jpeg_quality"`
}

// DetectorConfig describes the external detector/tracker HTTP contract.
type DetectorConfig struct {
	ServiceURL          string        `yaml:"service_url"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	EnabledClasses      []string      `yaml:"enabled_classes"`
}

// GateConfig describes the counting band geometry and anti-jitter
// thresholds. Coordinates are in pixels of the source frame.
type GateConfig struct {
	Mode            string   `yaml:"mode"` // HORIZONTAL_BAND or LINE_BAND
	GateY           float64  `yaml:"gate_y"`
	GateHeight      float64  `yaml:"gate_height"`
	GateXMin        *float64 `yaml:"gate_x_min"`
	GateXMax        *float64 `yaml:"gate_x_max"`
	P1X             float64  `yaml:"p1_x"`
	P1Y             float64  `yaml:"p1_y"`
	P2X             float64  `yaml:"p2_x"`
	P2Y             float64  `yaml:"p2_y"`
	GateThickness   float64  `yaml:"gate_thickness"`
	CooldownSeconds float64  `yaml:"cooldown_seconds"`
	MinFramesInGate int      `yaml:"min_frames_in_gate"`
	MinTravelPixels float64  `yaml:"min_travel_pixels"`
}

// PhaseConfig describes the day's phase boundaries and timezone.
type PhaseConfig struct {
	Timezone       string `yaml:"timezone"`
	ResetTime      string `yaml:"reset_time"`      // HH:MM
	MorningEnd     string `yaml:"morning_end"`      // HH:MM
	LunchStart     string `yaml:"lunch_start"`      // HH:MM
	AfternoonStart string `yaml:"afternoon_start"` // HH:MM
	DayCloseTime   string `yaml:"day_close_time"`  // HH:MM
}

// AlertConfig describes email alert cadence and delay.
type AlertConfig struct {
	Enabled         bool          `yaml:"enabled"`
	FirstAlertDelay time.Duration `yaml:"first_alert_delay"`
	CooldownWindow  time.Duration `yaml:"cooldown_window"`
	TickInterval    time.Duration `yaml:"tick_interval"`
}

// StorageConfig describes the SQLite store location.
type StorageConfig struct {
	DatabasePath  string `yaml:"database_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ExportConfig describes the daily/rolling spreadsheet exporters.
type ExportConfig struct {
	DailyDir     string        `yaml:"daily_dir"`
	SummaryDir   string        `yaml:"summary_dir"`
	WindowDays   int           `yaml:"window_days"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SMTPConfig describes the outgoing mail server used for shortfall alerts.
type SMTPConfig struct {
	Host      string   `yaml:"host"`
	Port      int      `yaml:"port"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	From      string   `yaml:"from"`
	To        []string `yaml:"to"`
	Subject   string   `yaml:"subject"`
}

// Load reads and parses the configuration file at path, applying defaults to
// any field left unset.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.yaml",
		"../config/config.yaml",
		"/etc/gate-monitor/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// setDefaults fills in every field the spec calls load-bearing-free: nothing
// in here is required for the service to start.
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Service.DataDir == "" {
		c.Service.DataDir = "./data"
	}
	if c.Service.ShutdownTimeout == 0 {
		c.Service.ShutdownTimeout = 15 * time.Second
	}
	if c.Service.StatusAddr == "" {
		c.Service.StatusAddr = ":8090"
	}

	if c.Camera.ID == "" {
		c.Camera.ID = "gate-1"
	}
	if c.Camera.PollInterval == 0 {
		c.Camera.PollInterval = 1 * time.Second
	}
	if c.Camera.ReconnectInterval == 0 {
		c.Camera.ReconnectInterval = 5 * time.Second
	}
	if c.Camera.JPEGQuality == 0 {
		c.Camera.JPEGQuality = 85
	}

	if c.Detector.Timeout == 0 {
		c.Detector.Timeout = 3 * time.Second
	}
	if c.Detector.ConfidenceThreshold == 0 {
		c.Detector.ConfidenceThreshold = 0.5
	}

	if c.Gate.Mode == "" {
		c.Gate.Mode = "HORIZONTAL_BAND"
	}
	if c.Gate.CooldownSeconds == 0 {
		c.Gate.CooldownSeconds = 1.5
	}
	if c.Gate.MinFramesInGate == 0 {
		c.Gate.MinFramesInGate = 2
	}
	if c.Gate.MinTravelPixels == 0 {
		c.Gate.MinTravelPixels = 20
	}

	if c.Phase.Timezone == "" {
		c.Phase.Timezone = "Local"
	}
	if c.Phase.ResetTime == "" {
		c.Phase.ResetTime = "06:00"
	}
	if c.Phase.MorningEnd == "" {
		c.Phase.MorningEnd = "08:30"
	}
	if c.Phase.LunchStart == "" {
		c.Phase.LunchStart = "11:55"
	}
	if c.Phase.AfternoonStart == "" {
		c.Phase.AfternoonStart = "13:15"
	}
	if c.Phase.DayCloseTime == "" {
		c.Phase.DayCloseTime = "23:59"
	}

	if c.Alert.FirstAlertDelay == 0 {
		c.Alert.FirstAlertDelay = 1830 * time.Second
	}
	if c.Alert.CooldownWindow == 0 {
		c.Alert.CooldownWindow = 30 * time.Minute
	}
	if c.Alert.TickInterval == 0 {
		c.Alert.TickInterval = 30 * time.Minute
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./data/gate_monitor.db"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 90
	}

	if c.Export.DailyDir == "" {
		c.Export.DailyDir = "./data/exports/daily"
	}
	if c.Export.SummaryDir == "" {
		c.Export.SummaryDir = "./data/exports/summary"
	}
	if c.Export.WindowDays == 0 {
		c.Export.WindowDays = 7
	}
	if c.Export.TickInterval == 0 {
		c.Export.TickInterval = 30 * time.Minute
	}

	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.Subject == "" {
		c.SMTP.Subject = "Gate occupancy shortfall"
	}
}
