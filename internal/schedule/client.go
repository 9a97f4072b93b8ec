package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// ErrSessionNotFound is returned when the token does not resolve to a live
// scheduling session (expired or invalid link).
var ErrSessionNotFound = errors.New("schedule: session not found")

// ErrNDAAlreadyRequested is returned by RequestNDA when the backend already
// recorded an NDA request for this token.
var ErrNDAAlreadyRequested = errors.New("schedule: nda already requested")

// RequestError carries a human-readable rejection reason from the backend.
type RequestError struct {
	StatusCode int
	Reason     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("schedule: request rejected (%d): %s", e.StatusCode, e.Reason)
}

// NDAReceipt is the backend's acknowledgement of a request-nda call.
type NDAReceipt struct {
	Success    bool   `json:"success"`
	EnvelopeID string `json:"envelope_id,omitempty"`
}

// Client is an HTTP client for the pipeline service's public schedule
// endpoints. Every call hits the backend fresh; no caching, no retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a schedule client against the pipeline service base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
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

// GetSession fetches the current snapshot for the session addressed by token.
func (c *Client) GetSession(ctx context.Context, token string) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/schedule/"+token, nil)
	if err != nil {
		return nil, fmt.Errorf("schedule: create session request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule: session request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSessionNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return nil, &RequestError{StatusCode: resp.StatusCode, Reason: string(body)}
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("schedule: decode session: %w", err)
	}
	if !session.Valid() {
		c.logger.Warn("session snapshot violates nda invariant", "stage", session.Stage)
	}

	return &session, nil
}

// RequestNDA asks the backend to send the NDA envelope for this session.
// Single-shot; dedup across tabs is the backend's responsibility.
func (c *Client) RequestNDA(ctx context.Context, token string) (*NDAReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/schedule/"+token+"/request-nda", bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("schedule: create nda request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("schedule: nda request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSessionNotFound
	case http.StatusConflict, http.StatusBadRequest:
		return nil, ErrNDAAlreadyRequested
	default:
		reason := decodeErrorReason(resp.Body)
		return nil, &RequestError{StatusCode: resp.StatusCode, Reason: reason}
	}

	var receipt NDAReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("schedule: decode nda receipt: %w", err)
	}

	c.logger.Info("nda requested", "envelope_id", receipt.EnvelopeID)
	return &receipt, nil
}

func decodeErrorReason(r io.Reader) string {
	body, _ := io.ReadAll(r)
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(body)
}
