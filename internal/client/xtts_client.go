package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicemirror/api/internal/config"
)

// SynthesizeRequest asks the engine to produce audio in the cloned voice.
// The sidecar shares the local filesystem, so paths cross the boundary
// instead of audio bytes.
type SynthesizeRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
	Device     string `json:"device"`
	OutputPath string `json:"output_path"`
}

// LoadRequest asks the engine to load the model onto a device.
type LoadRequest struct {
	Device string `json:"device"`
}

// XTTSClient talks to the XTTS inference sidecar over HTTP. Model loading
// and synthesis are the slow calls; both honor the request context.
type XTTSClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewXTTSClient creates a new engine client.
func NewXTTSClient(cfg *config.EngineConfig) *XTTSClient {
	return &XTTSClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// LoadModel loads the model weights onto the given device. Loading can take
// minutes on first call; the sidecar returns once the model is resident.
func (c *XTTSClient) LoadModel(ctx context.Context, device string) error {
	if err := c.post(ctx, "/load", LoadRequest{Device: device}, nil); err != nil {
		return fmt.Errorf("model load failed: %w", err)
	}
	return nil
}

// Synthesize produces audio for text conditioned on the reference sample.
// The engine writes the result to req.OutputPath.
func (c *XTTSClient) Synthesize(ctx context.Context, req SynthesizeRequest) error {
	if err := c.post(ctx, "/synthesize", req, nil); err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}
	return nil
}

// HealthCheck checks if the engine sidecar is reachable.
func (c *XTTSClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration.
func (c *XTTSClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body and parses the response.
func (c *XTTSClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("engine error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
