// Package nda sends non-disclosure agreement envelopes through the
// e-signature provider. The pipeline service records the returned envelope ID
// against the opportunity; signature completion arrives later via the
// provider's webhook.
package nda

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the disabled sender when no provider
// credentials are present. Callers surface it as a provider failure.
var ErrNotConfigured = errors.New("nda: e-signature provider not configured")

// EnvelopeRequest carries everything the provider needs to assemble and route
// the NDA document.
type EnvelopeRequest struct {
	OpportunityID string `json:"opportunity_id"`
	CompanyName   string `json:"company_name"`
	ContactName   string `json:"contact_name"`
	ContactEmail  string `json:"contact_email"`
	TemplateID    string `json:"template_id,omitempty"`
}

// Envelope is the provider's acknowledgement of a sent document.
type Envelope struct {
	ID     string `json:"envelope_id"`
	Status string `json:"status"`
}

// Sender sends an NDA envelope to the opportunity's primary contact.
type Sender interface {
	SendNDA(ctx context.Context, req EnvelopeRequest) (*Envelope, error)
}
