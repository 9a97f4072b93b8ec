package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/baxterlabs/pipeline-platform/internal/schedule"
)

// SessionGateway adapts the Service to the portal's session API so the
// WebSocket portal runs in-process instead of calling back over HTTP.
// Error values are translated to the ones the portal already understands.
type SessionGateway struct {
	service *Service
}

// NewSessionGateway wraps a Service for in-process portal use.
func NewSessionGateway(service *Service) *SessionGateway {
	return &SessionGateway{service: service}
}

// GetSession fetches the session snapshot for the token.
func (g *SessionGateway) GetSession(ctx context.Context, token string) (*schedule.Session, error) {
	sess, err := g.service.ScheduleView(ctx, token)
	if errors.Is(err, ErrOpportunityNotFound) {
		return nil, schedule.ErrSessionNotFound
	}
	return sess, err
}

// RequestNDA triggers the envelope send for the token.
func (g *SessionGateway) RequestNDA(ctx context.Context, token string) (*schedule.NDAReceipt, error) {
	envelopeID, err := g.service.RequestNDA(ctx, token)
	switch {
	case err == nil:
		return &schedule.NDAReceipt{Success: true, EnvelopeID: envelopeID}, nil
	case errors.Is(err, ErrOpportunityNotFound):
		return nil, schedule.ErrSessionNotFound
	case errors.Is(err, ErrNDAAlreadyRequested):
		return nil, schedule.ErrNDAAlreadyRequested
	case errors.Is(err, ErrContactEmailMissing):
		return nil, &schedule.RequestError{StatusCode: http.StatusBadRequest, Reason: "contact email missing"}
	}

	var unavailable *ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return nil, &schedule.RequestError{StatusCode: http.StatusBadGateway, Reason: "e-signature send failed"}
	}
	return nil, err
}
