package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration, accumulating every violation found
// before returning one aggregate error.
func (c *Config) Validate() error {
	var errors []string

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	if c.Service.DataDir == "" {
		errors = append(errors, "service.data_dir is required")
	}
	if c.Service.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("service.shutdown_timeout must be > 0, got: %v", c.Service.ShutdownTimeout))
	}

	if c.Camera.URL == "" {
		errors = append(errors, "camera.url is required")
	}
	if c.Camera.PollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("camera.poll_interval must be > 0, got: %v", c.Camera.PollInterval))
	}
	if c.Camera.ReconnectInterval <= 0 {
		errors = append(errors, fmt.Sprintf("camera.reconnect_interval must be > 0, got: %v", c.Camera.ReconnectInterval))
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("camera.jpeg_quality must be between 1 and 100, got: %d", c.Camera.JPEGQuality))
	}

	if c.Detector.ServiceURL == "" {
		errors = append(errors, "detector.service_url is required")
	}
	if c.Detector.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("detector.timeout must be > 0, got: %v", c.Detector.Timeout))
	}
	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errors = append(errors, fmt.Sprintf("detector.confidence_threshold must be between 0 and 1, got: %.2f", c.Detector.ConfidenceThreshold))
	}

	if c.Gate.Mode != "HORIZONTAL_BAND" && c.Gate.Mode != "LINE_BAND" {
		errors = append(errors, fmt.Sprintf("invalid gate.mode: %s (must be: HORIZONTAL_BAND or LINE_BAND)", c.Gate.Mode))
	}
	if c.Gate.Mode == "HORIZONTAL_BAND" && c.Gate.GateHeight <= 0 {
		errors = append(errors, "gate.gate_height must be > 0 for HORIZONTAL_BAND mode")
	}
	if c.Gate.Mode == "LINE_BAND" && c.Gate.GateThickness <= 0 {
		errors = append(errors, "gate.gate_thickness must be > 0 for LINE_BAND mode")
	}
	if c.Gate.CooldownSeconds < 0 {
		errors = append(errors, fmt.Sprintf("gate.cooldown_seconds must be >= 0, got: %.2f", c.Gate.CooldownSeconds))
	}
	if c.Gate.MinFramesInGate < 1 {
		errors = append(errors, fmt.Sprintf("gate.min_frames_in_gate must be >= 1, got: %d", c.Gate.MinFramesInGate))
	}
	if c.Gate.MinTravelPixels < 0 {
		errors = append(errors, fmt.Sprintf("gate.min_travel_pixels must be >= 0, got: %.2f", c.Gate.MinTravelPixels))
	}

	for _, field := range []struct{ name, val string }{
		{"phase.reset_time", c.Phase.ResetTime},
		{"phase.morning_end", c.Phase.MorningEnd},
		{"phase.lunch_start", c.Phase.LunchStart},
		{"phase.afternoon_start", c.Phase.AfternoonStart},
		{"phase.day_close_time", c.Phase.DayCloseTime},
	} {
		if _, err := parseHHMM(field.val); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s: %s (%v)", field.name, field.val, err))
		}
	}

	if c.Alert.FirstAlertDelay <= 0 {
		errors = append(errors, fmt.Sprintf("alert.first_alert_delay must be > 0, got: %v", c.Alert.FirstAlertDelay))
	}
	if c.Alert.CooldownWindow <= 0 {
		errors = append(errors, fmt.Sprintf("alert.cooldown_window must be > 0, got: %v", c.Alert.CooldownWindow))
	}
	if c.Alert.TickInterval <= 0 {
		errors = append(errors, fmt.Sprintf("alert.tick_interval must be > 0, got: %v", c.Alert.TickInterval))
	}
	if c.Alert.Enabled {
		if c.SMTP.Host == "" {
			errors = append(errors, "smtp.host is required when alert.enabled is true")
		}
		if c.SMTP.From == "" {
			errors = append(errors, "smtp.from is required when alert.enabled is true")
		}
		if len(c.SMTP.To) == 0 {
			errors = append(errors, "smtp.to must list at least one recipient when alert.enabled is true")
		}
	}

	if c.Storage.DatabasePath == "" {
		errors = append(errors, "storage.database_path is required")
	}
	if c.Storage.RetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("storage.retention_days must be >= 0, got: %d", c.Storage.RetentionDays))
	}

	if c.Export.DailyDir == "" {
		errors = append(errors, "export.daily_dir is required")
	}
	if c.Export.SummaryDir == "" {
		errors = append(errors, "export.summary_dir is required")
	}
	if c.Export.WindowDays <= 0 {
		errors = append(errors, fmt.Sprintf("export.window_days must be > 0, got: %d", c.Export.WindowDays))
	}
	if c.Export.TickInterval <= 0 {
		errors = append(errors, fmt.Sprintf("export.tick_interval must be > 0, got: %v", c.Export.TickInterval))
	}

	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errors = append(errors, fmt.Sprintf("smtp.port must be between 0 and 65535, got: %d", c.SMTP.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// parseHHMM validates an "HH:MM" phase boundary without pulling in a full
// time-parsing dependency the rest of the config surface doesn't need.
func parseHHMM(v string) (struct{ H, M int }, error) {
	var h, m int
	n, err := fmt.Sscanf(v, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return struct{ H, M int }{}, fmt.Errorf("expected HH:MM")
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return struct{ H, M int }{}, fmt.Errorf("hour/minute out of range")
	}
	return struct{ H, M int }{h, m}, nil
}
