// -----------------------------------------------------------------------
// Analysis Client - Optional secondary analysis backend over HTTP
// -----------------------------------------------------------------------

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/models"
)

// Client posts a condensed evidence payload to an external analysis
// endpoint during synthesis. The backend is optional; when disabled, the
// synthesis stage proceeds without it.
type Client struct {
	config     *common.AnalysisConfig
	logger     arbor.ILogger
	httpClient *http.Client
}

// Compile-time interface assertion
var _ interfaces.AnalysisService = (*Client)(nil)

// NewClient creates a secondary analysis client
func NewClient(config *common.AnalysisConfig, logger arbor.ILogger) *Client {
	timeout, err := time.ParseDuration(config.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Enabled reports whether the backend is configured and reachable in
// principle
func (c *Client) Enabled() bool {
	return c.config.Enabled && c.config.Endpoint != ""
}

// Analyze sends the condensed payload and decodes the backend's result
func (c *Client) Analyze(ctx context.Context, payload *interfaces.AnalysisPayload) (*models.AnalysisResult, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("analysis backend is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis backend returned %d: %s", resp.StatusCode, truncateForLog(respBody))
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis response: %w", err)
	}

	c.logger.Debug().
		Str("job_id", payload.JobID).
		Int("files", len(payload.Files)).
		Dur("duration", time.Since(start)).
		Msg("Secondary analysis completed")

	return &result, nil
}

func truncateForLog(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
