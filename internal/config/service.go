package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

// Service provides configuration management with environment variable
// overrides and hot reload.
type Service struct {
	config     *Config
	configPath string
	logger     *logger.Logger
	mu         sync.RWMutex
	watchers   []ConfigWatcher
}

// ConfigWatcher is called when configuration changes.
type ConfigWatcher func(ctx context.Context, oldConfig, newConfig *Config) error

// NewService loads, overrides, and validates the configuration at configPath.
func NewService(configPath string, log *logger.Logger) (*Service, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial configuration: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Service{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		watchers:   make([]ConfigWatcher, 0),
	}, nil
}

// Get returns the current configuration (thread-safe).
func (s *Service) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Reload re-reads the configuration file, applies overrides, validates, and
// notifies watchers of the change.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldConfig := s.config

	newConfig, err := Load(s.configPath)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	applyEnvOverrides(newConfig)

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid reloaded configuration: %w", err)
	}

	s.config = newConfig

	for _, watcher := range s.watchers {
		if err := watcher(ctx, oldConfig, newConfig); err != nil {
			s.logger.Error("config watcher error", "error", err)
		}
	}

	s.logger.Info("configuration reloaded", "path", s.configPath)
	return nil
}

// Watch registers a configuration change watcher.
func (s *Service) Watch(watcher ConfigWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, watcher)
}

// applyEnvOverrides lets operators override the sensitive or host-specific
// fields (credentials, URLs, paths) without editing the YAML file.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Log.Format = val
	}
	if val := os.Getenv("LOG_OUTPUT"); val != "" {
		cfg.Log.Output = val
	}

	if val := os.Getenv("GATE_MONITOR_DATA_DIR"); val != "" {
		cfg.Service.DataDir = val
	}

	if val := os.Getenv("CAMERA_URL"); val != "" {
		cfg.Camera.URL = val
	}
	if val := os.Getenv("CAMERA_USERNAME"); val != "" {
		cfg.Camera.Username = val
	}
	if val := os.Getenv("CAMERA_PASSWORD"); val != "" {
		cfg.Camera.Password = val
	}

	if val := os.Getenv("DETECTOR_SERVICE_URL"); val != "" {
		cfg.Detector.ServiceURL = val
	}
	if val := os.Getenv("DETECTOR_CONFIDENCE_THRESHOLD"); val != "" {
		if threshold, err := parseFloat64(val); err == nil {
			cfg.Detector.ConfidenceThreshold = threshold
		}
	}

	if val := os.Getenv("STORAGE_DATABASE_PATH"); val != "" {
		cfg.Storage.DatabasePath = val
	}
	if val := os.Getenv("STORAGE_RETENTION_DAYS"); val != "" {
		if days, err := parseInt(val); err == nil {
			cfg.Storage.RetentionDays = days
		}
	}

	if val := os.Getenv("ALERT_ENABLED"); val != "" {
		cfg.Alert.Enabled = (val == "true" || val == "1")
	}

	if val := os.Getenv("SMTP_HOST"); val != "" {
		cfg.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_USERNAME"); val != "" {
		cfg.SMTP.Username = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		cfg.SMTP.Password = val
	}
	if val := os.Getenv("SMTP_TO"); val != "" {
		to := strings.Split(val, ",")
		for i := range to {
			to[i] = strings.TrimSpace(to[i])
		}
		cfg.SMTP.To = to
	}
}

func parseInt(s string) (int, error) {
	var result int
	_, err := fmt.Sscanf(s, "%d", &result)
	return result, err
}

func parseFloat64(s string) (float64, error) {
	var result float64
	_, err := fmt.Sscanf(s, "%f", &result)
	return result, err
}

// GetEnvWithDefault gets an environment variable with a default value.
func GetEnvWithDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// GetEnvBool gets a boolean environment variable.
func GetEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	val = strings.ToLower(val)
	return val == "true" || val == "1" || val == "yes" || val == "on"
}

// GetEnvInt gets an integer environment variable.
func GetEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(val, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// GetEnvDuration gets a duration environment variable.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(val); err == nil {
		return duration
	}
	return defaultValue
}

// GetEnvFloat64 gets a float64 environment variable.
func GetEnvFloat64(key string, defaultValue float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(val, "%f", &result); err != nil {
		return defaultValue
	}
	return result
}
