package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoangtvse170014/checkout/internal/logger"
)

// Client is the contract the frame worker uses to obtain tracked boxes for a
// frame. Implementations may call out to an external process (HTTP) or, in
// tests, return canned results.
type Client interface {
	Infer(ctx context.Context, frameJPEG []byte) ([]TrackedBox, error)
}

// HTTPClient calls an external detector/tracker service over HTTP, posting
// base64-encoded JPEG frames and parsing back tracked boxes.
type HTTPClient struct {
	serviceURL          string
	httpClient          *http.Client
	logger              *logger.Logger
	confidenceThreshold float64
	enabledClasses      []string
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	ServiceURL          string
	Timeout             time.Duration
	ConfidenceThreshold float64
	EnabledClasses      []string
}

// NewHTTPClient constructs a detector client bound to an external service.
func NewHTTPClient(cfg HTTPClientConfig, log *logger.Logger) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPClient{
		serviceURL:          cfg.ServiceURL,
		httpClient:          &http.Client{Timeout: cfg.Timeout},
		logger:              log,
		confidenceThreshold: cfg.ConfidenceThreshold,
		enabledClasses:      cfg.EnabledClasses,
	}
}

// Infer posts a single JPEG frame and returns the tracked boxes found in it.
func (c *HTTPClient) Infer(ctx context.Context, frameJPEG []byte) ([]TrackedBox, error) {
	req := InferenceRequest{
		Image: base64.StdEncoding.EncodeToString(frameJPEG),
	}
	if c.confidenceThreshold > 0 {
		req.ConfidenceThreshold = &c.confidenceThreshold
	}
	if len(c.enabledClasses) > 0 {
		req.EnabledClasses = c.enabledClasses
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inference", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach detector service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detector response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.Warn("detector service returned error", "status", resp.StatusCode, "body", string(body))
		}
		return nil, fmt.Errorf("detector service returned status %d: %s", resp.StatusCode, string(body))
	}

	var infResp InferenceResponse
	if err := json.Unmarshal(body, &infResp); err != nil {
		return nil, fmt.Errorf("failed to parse detector response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("inference completed",
			"box_count", len(infResp.Boxes),
			"inference_time_ms", infResp.InferenceTimeMs,
			"request_duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return infResp.Boxes, nil
}
