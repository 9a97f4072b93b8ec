package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// WidgetAPIClient cancels booked events through the scheduling widget
// vendor's API.
type WidgetAPIClient struct {
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// WidgetAPIOption configures the client.
type WidgetAPIOption func(*WidgetAPIClient)

// WithWidgetHTTPClient sets a custom HTTP client.
func WithWidgetHTTPClient(client *http.Client) WidgetAPIOption {
	return func(c *WidgetAPIClient) { c.httpClient = client }
}

// WithWidgetLogger sets a custom logger.
func WithWidgetLogger(logger *logging.Logger) WidgetAPIOption {
	return func(c *WidgetAPIClient) { c.logger = logger }
}

// NewWidgetAPIClient creates the vendor API client. An empty apiKey yields a
// client whose cancellations are skipped.
func NewWidgetAPIClient(apiKey string, opts ...WidgetAPIOption) *WidgetAPIClient {
	c := &WidgetAPIClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CancelEvent cancels the scheduled event behind eventURI. The URI is the one
// the vendor's webhook delivered; cancellation posts to its /cancellation
// sub-resource.
func (c *WidgetAPIClient) CancelEvent(ctx context.Context, eventURI, reason string) error {
	if c.apiKey == "" {
		c.logger.Warn("widget api key not configured, skipping event cancel", "event_uri", eventURI)
		return nil
	}

	body, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("pipeline: encode cancellation: %w", err)
	}

	url := strings.TrimRight(eventURI, "/") + "/cancellation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pipeline: create cancellation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: cancellation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pipeline: cancellation rejected (%d): %s", resp.StatusCode, string(raw))
	}

	c.logger.Info("widget event cancelled", "event_uri", eventURI, "reason", reason)
	return nil
}

var _ EventCanceller = (*WidgetAPIClient)(nil)
