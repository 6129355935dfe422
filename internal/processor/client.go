// Package processor holds the HTTP client for the external clip-extraction
// service.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultModel is sent when the configuration does not name one.
const DefaultModel = "qwen/qwen3-coder"

// Config holds the endpoint settings.
type Config struct {
	Endpoint  string
	AuthToken string
	Model     string
	Timeout   time.Duration
}

// Client calls the clip-extraction endpoint. A timeout, transport error, or
// non-2xx response is returned as an error; the workflow treats all of them
// as one retriable failure class.
type Client struct {
	endpoint   string
	authToken  string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		endpoint:  cfg.Endpoint,
		authToken: cfg.AuthToken,
		model:     model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type processRequest struct {
	S3Key    string `json:"s3_key"`
	MaxClips int    `json:"max_clips"`
	Model    string `json:"model"`
}

// Process dispatches one extraction request for sourceKey.
func (c *Client) Process(ctx context.Context, sourceKey string, maxClips int) error {
	body, err := json.Marshal(processRequest{
		S3Key:    sourceKey,
		MaxClips: maxClips,
		Model:    c.model,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	c.logger.Info("Calling clip-extraction endpoint",
		slog.String("s3_key", sourceKey),
		slog.Int("max_clips", maxClips),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("process request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("process endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	return nil
}
