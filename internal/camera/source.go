package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
	"github.com/hoangtvse170014/checkout/internal/service"
)

// Frame is a single still JPEG pulled off the configured RTSP source.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	CameraID  string
}

// SourceConfig describes the single camera this process monitors.
type SourceConfig struct {
	CameraID          string
	URL               string
	Username          string
	Password          string
	PollInterval      time.Duration // interval between frame pulls
	ReconnectInterval time.Duration
	JPEGQuality       int
	OnFrame           func(Frame)
}

// Source pulls still JPEG frames from a single RTSP camera on a fixed
// interval via ffmpeg, reconnecting on failure. It implements
// service.Service so it can be registered with the manager alongside the
// rest of the background workers.
type Source struct {
	*service.ServiceBase
	cfg    SourceConfig
	ffmpeg *FFmpegWrapper

	mu           sync.RWMutex
	connected    bool
	healthStatus string
	lastFrame    time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSource constructs a Source for the given camera configuration.
func NewSource(cfg SourceConfig, ffmpeg *FFmpegWrapper, log *logger.Logger) *Source {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Source{
		ServiceBase:  service.NewServiceBase("camera-source", log),
		cfg:          cfg,
		ffmpeg:       ffmpeg,
		healthStatus: "disconnected",
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Name returns the service name.
func (s *Source) Name() string {
	return fmt.Sprintf("camera-source-%s", s.cfg.CameraID)
}

// Start validates the RTSP URL once then begins the poll loop.
func (s *Source) Start(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStarting)
	s.LogInfo("starting camera source", "camera_id", s.cfg.CameraID, "url", s.rtspURL())

	go s.run()

	s.GetStatus().SetStatus(service.StatusRunning)
	return nil
}

// Stop halts the poll loop.
func (s *Source) Stop(ctx context.Context) error {
	s.GetStatus().SetStatus(service.StatusStopping)
	s.cancel()
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

func (s *Source) rtspURL() string {
	return s.cfg.URL
}

func (s *Source) run() {
	if err := s.ffmpeg.ValidateInput(s.rtspURL()); err != nil {
		s.LogError("initial RTSP probe failed, will keep retrying", err, "url", s.rtspURL())
		s.setHealth(false, "error")
	} else {
		s.setHealth(true, "connected")
		s.publishConnected()
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			frame, err := s.pullFrame()
			if err != nil {
				s.LogDebug("failed to pull frame", "error", err, "camera_id", s.cfg.CameraID)
				if s.isConnected() {
					s.setHealth(false, "degraded")
					s.publishDisconnected(err)
				}
				continue
			}

			if !s.isConnected() {
				s.setHealth(true, "connected")
				s.publishConnected()
			}
			s.mu.Lock()
			s.lastFrame = frame.Timestamp
			s.mu.Unlock()

			if s.cfg.OnFrame != nil {
				s.cfg.OnFrame(frame)
			}
		}
	}
}

func (s *Source) pullFrame() (Frame, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReconnectInterval)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", s.rtspURL(),
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprintf("%d", s.cfg.JPEGQuality),
		"-",
	}

	cmd := s.ffmpeg.BuildCommand(ctx, args)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return Frame{}, fmt.Errorf("ffmpeg frame pull failed: %w", err)
	}

	data := stdout.Bytes()
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("no frame data extracted")
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		return Frame{}, fmt.Errorf("invalid JPEG frame: %w", err)
	}

	return Frame{Data: data, Timestamp: time.Now(), CameraID: s.cfg.CameraID}, nil
}

func (s *Source) setHealth(connected bool, status string) {
	s.mu.Lock()
	s.connected = connected
	s.healthStatus = status
	s.mu.Unlock()
}

func (s *Source) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Source) publishConnected() {
	if s.GetEventBus() != nil {
		s.PublishEvent(service.EventTypeCameraConnected, map[string]interface{}{"camera_id": s.cfg.CameraID, "url": s.rtspURL()})
	}
}

func (s *Source) publishDisconnected(err error) {
	if s.GetEventBus() != nil {
		s.PublishEvent(service.EventTypeCameraDisconnected, map[string]interface{}{"camera_id": s.cfg.CameraID, "reason": err.Error()})
	}
}

// IsConnected reports whether the last frame pull succeeded.
func (s *Source) IsConnected() bool {
	return s.isConnected()
}

// HealthStatus returns a human-readable health string for the status surface.
func (s *Source) HealthStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthStatus
}

// LastFrameTime returns the timestamp of the most recently pulled frame.
func (s *Source) LastFrameTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}
