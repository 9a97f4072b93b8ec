package nda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// ProviderError carries the e-signature provider's rejection.
type ProviderError struct {
	StatusCode int
	Reason     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("nda: provider rejected envelope (%d): %s", e.StatusCode, e.Reason)
}

// EnvelopeClient talks to the e-signature provider's REST API.
type EnvelopeClient struct {
	baseURL    string
	apiKey     string
	templateID string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the EnvelopeClient.
type ClientOption func(*EnvelopeClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *EnvelopeClient) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *EnvelopeClient) {
		c.logger = logger
	}
}

// WithTemplateID sets the provider document template applied to every
// envelope that does not name its own.
func WithTemplateID(id string) ClientOption {
	return func(c *EnvelopeClient) {
		c.templateID = id
	}
}

// NewEnvelopeClient creates a provider client. baseURL is the provider's REST
// root; apiKey authenticates every call.
func NewEnvelopeClient(baseURL, apiKey string, opts ...ClientOption) *EnvelopeClient {
	c := &EnvelopeClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SendNDA posts the envelope definition and returns the provider's receipt.
func (c *EnvelopeClient) SendNDA(ctx context.Context, req EnvelopeRequest) (*Envelope, error) {
	if req.TemplateID == "" {
		req.TemplateID = c.templateID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("nda: encode envelope request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/envelopes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nda: create envelope request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nda: envelope request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error string `json:"error"`
		}
		reason := string(raw)
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
			reason = payload.Error
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Reason: reason}
	}

	var envelope Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("nda: decode envelope receipt: %w", err)
	}

	c.logger.Info("nda envelope sent",
		"envelope_id", envelope.ID,
		"to", req.ContactEmail,
		"opportunity_id", req.OpportunityID,
	)
	return &envelope, nil
}

// Disabled is the sender used when the provider is not configured. Every send
// fails with ErrNotConfigured so the handler returns a provider failure
// instead of pretending the NDA went out.
type Disabled struct {
	logger *logging.Logger
}

// NewDisabled creates the no-op sender.
func NewDisabled(logger *logging.Logger) *Disabled {
	if logger == nil {
		logger = logging.Default()
	}
	return &Disabled{logger: logger}
}

// SendNDA always fails.
func (d *Disabled) SendNDA(_ context.Context, req EnvelopeRequest) (*Envelope, error) {
	d.logger.Warn("nda send skipped, provider not configured", "opportunity_id", req.OpportunityID)
	return nil, ErrNotConfigured
}

var (
	_ Sender = (*EnvelopeClient)(nil)
	_ Sender = (*Disabled)(nil)
)
