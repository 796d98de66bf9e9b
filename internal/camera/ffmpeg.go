package camera

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

// FFmpegWrapper locates and invokes the system ffmpeg binary used to pull
// still JPEG frames off the configured RTSP source.
type FFmpegWrapper struct {
	logger     *logger.Logger
	ffmpegPath string
}

// NewFFmpegWrapper locates an ffmpeg binary on the host.
func NewFFmpegWrapper(log *logger.Logger) (*FFmpegWrapper, error) {
	w := &FFmpegWrapper{logger: log, ffmpegPath: "ffmpeg"}

	path, err := w.detectFFmpeg()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	w.ffmpegPath = path

	if log != nil {
		log.Info("ffmpeg wrapper initialized", "path", w.ffmpegPath)
	}
	return w, nil
}

func (f *FFmpegWrapper) detectFFmpeg() (string, error) {
	for _, path := range []string{"ffmpeg", "/usr/bin/ffmpeg", "/usr/local/bin/ffmpeg"} {
		if err := exec.Command(path, "-version").Run(); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("ffmpeg not found in PATH or common locations")
}

// BuildCommand constructs an ffmpeg invocation bound to ctx.
func (f *FFmpegWrapper) BuildCommand(ctx context.Context, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, f.ffmpegPath, args...)
}

// ValidateInput probes the RTSP URL to confirm ffmpeg can open it.
func (f *FFmpegWrapper) ValidateInput(input string) error {
	args := []string{
		"-hide_banner",
		"-probesize", "32",
		"-analyzeduration", "1000000",
		"-i", input,
		"-f", "null",
		"-",
	}

	cmd := f.BuildCommand(context.Background(), args)
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := string(output)
		if strings.Contains(out, "Connection refused") ||
			strings.Contains(out, "No such file") ||
			strings.Contains(out, "Invalid data found") {
			return fmt.Errorf("invalid input: %s: %w", out, err)
		}
		return fmt.Errorf("input validation failed: %w", err)
	}
	return nil
}
