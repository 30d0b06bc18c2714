// Package exportclient calls a running export service over HTTP
package exportclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/deckexport/pkg/types"
)

// RemoteError is a failed export reported by the service
type RemoteError struct {
	StatusCode int
	SessionID  string
	Kind       string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("export service returned %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

// Client wraps the HTTP client for communicating with the export service
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// New creates a client for the service at baseURL. timeout should cover export.max_timeout;
// the context passed to Export can shorten it.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Export sends an export request and returns the slide model. Service-side failures are *RemoteError.
func (c *Client) Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error) {
	if c.baseURL == "" {
		return nil, errors.New("service URL is empty")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/export", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending export request",
		zap.String("service_url", c.baseURL),
		zap.String("presentation_id", req.PresentationID))

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var failure types.ExportErrorResponse
		if err := json.Unmarshal(respBody, &failure); err != nil || failure.ErrorKind == "" {
			failure = types.ExportErrorResponse{
				ErrorKind: types.ErrorKindInternal,
				Error:     string(respBody[:min(200, len(respBody))]),
			}
		}
		c.logger.Warn("Export service returned an error",
			zap.Int("status_code", httpResp.StatusCode),
			zap.String("error_kind", failure.ErrorKind),
			zap.String("error", failure.Error))
		return nil, &RemoteError{
			StatusCode: httpResp.StatusCode,
			SessionID:  failure.SessionID,
			Kind:       failure.ErrorKind,
			Message:    failure.Error,
		}
	}

	var result types.ExportResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.logger.Debug("Export request completed",
		zap.String("session_id", result.SessionID),
		zap.Int("slides", len(result.Slides)),
		zap.Duration("duration", time.Since(start)),
		zap.Duration("export_time", result.ExportTime))
	return &result, nil
}
