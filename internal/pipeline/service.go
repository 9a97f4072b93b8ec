package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/baxterlabs/pipeline-platform/internal/nda"
	"github.com/baxterlabs/pipeline-platform/internal/notify"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

var pipelineTracer trace.Tracer = otel.Tracer("baxterlabs.internal.pipeline")

// ErrNDAAlreadyRequested is returned when the envelope already went out for
// this opportunity, whichever tab or process sent it.
var ErrNDAAlreadyRequested = errors.New("pipeline: nda already requested")

// ErrContactEmailMissing means the opportunity has no primary contact email
// to route the envelope to.
var ErrContactEmailMissing = errors.New("pipeline: contact email missing")

// ProviderUnavailableError wraps an e-signature provider failure so the
// handler can answer 502 instead of 500.
type ProviderUnavailableError struct {
	Err error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("pipeline: envelope send failed: %v", e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// EventCanceller cancels a booked event on the scheduling widget's side.
type EventCanceller interface {
	CancelEvent(ctx context.Context, eventURI, reason string) error
}

// Service owns the scheduling flow's backend operations.
type Service struct {
	store     *Store
	lock      *TokenLock
	sender    nda.Sender
	email     notify.EmailSender
	canceller EventCanceller
	logger    *logging.Logger

	widgetURL    string
	partnerEmail string
	staleCutoff  time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTokenLock enables cross-process request-nda dedup.
func WithTokenLock(lock *TokenLock) ServiceOption {
	return func(s *Service) { s.lock = lock }
}

// WithPartnerEmail sets the address notified when a prospect requests the NDA.
func WithPartnerEmail(addr string) ServiceOption {
	return func(s *Service) { s.partnerEmail = addr }
}

// WithEmailSender sets the notification sender.
func WithEmailSender(sender notify.EmailSender) ServiceOption {
	return func(s *Service) { s.email = sender }
}

// WithEventCanceller enables widget-side cancellation during the stale sweep.
func WithEventCanceller(c EventCanceller) ServiceOption {
	return func(s *Service) { s.canceller = c }
}

// WithStaleCutoff overrides how old an un-NDA'd booking must be before the
// sweep reverts it.
func WithStaleCutoff(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.staleCutoff = d
		}
	}
}

// WithServiceLogger sets a custom logger.
func WithServiceLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService wires the scheduling flow. widgetURL is the embed URL handed to
// the portal for every session.
func NewService(store *Store, sender nda.Sender, widgetURL string, opts ...ServiceOption) *Service {
	if store == nil {
		panic("pipeline: store required")
	}
	if sender == nil {
		sender = nda.NewDisabled(nil)
	}
	s := &Service{
		store:       store,
		sender:      sender,
		logger:      logging.Default(),
		widgetURL:   widgetURL,
		staleCutoff: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleView assembles the public schedule page snapshot for a token.
func (s *Service) ScheduleView(ctx context.Context, token string) (*schedule.Session, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.schedule_view")
	defer span.End()

	opp, err := s.store.GetByToken(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrOpportunityNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("baxterlabs.opportunity_id", opp.ID.String()))

	return &schedule.Session{
		CompanyName:  opp.CompanyName,
		ContactName:  opp.ContactName,
		ContactEmail: opp.ContactEmail,
		AssignedTo:   opp.AssignedTo,
		BookingTime:  opp.BookingTime,
		NDARequested: opp.NDARequested(),
		NDASigned:    opp.NDASigned(),
		Stage:        opp.Stage,
		WidgetURL:    s.widgetURL,
	}, nil
}

// RequestNDA sends the NDA envelope for the opportunity addressed by token.
// Idempotent: a second request, from any tab or process, fails with
// ErrNDAAlreadyRequested and sends nothing.
func (s *Service) RequestNDA(ctx context.Context, token string) (string, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.request_nda")
	defer span.End()

	opp, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("baxterlabs.opportunity_id", opp.ID.String()))

	if opp.NDARequested() {
		return "", ErrNDAAlreadyRequested
	}
	if opp.ContactEmail == "" {
		return "", ErrContactEmailMissing
	}

	ok, err := s.lock.Acquire(ctx, token)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if !ok {
		return "", ErrNDAAlreadyRequested
	}
	defer s.lock.Release(ctx, token)

	envelope, err := s.sender.SendNDA(ctx, nda.EnvelopeRequest{
		OpportunityID: opp.ID.String(),
		CompanyName:   opp.CompanyName,
		ContactName:   opp.ContactName,
		ContactEmail:  opp.ContactEmail,
	})
	if err != nil {
		span.RecordError(err)
		return "", &ProviderUnavailableError{Err: err}
	}

	updated, err := s.store.MarkNDARequested(ctx, opp.ID, envelope.ID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if !updated {
		// Lost a race that slipped past the lock, e.g. after a lock
		// expiry. The envelope duplicate is the provider's to dedup.
		s.logger.Warn("nda mark lost race", "opportunity_id", opp.ID, "envelope_id", envelope.ID)
		return "", ErrNDAAlreadyRequested
	}

	s.logger.Info("nda envelope sent",
		"opportunity_id", opp.ID,
		"envelope_id", envelope.ID,
		"company", opp.CompanyName,
	)
	s.notifyPartner(ctx, opp, envelope.ID)

	return envelope.ID, nil
}

func (s *Service) notifyPartner(ctx context.Context, opp *Opportunity, envelopeID string) {
	if s.email == nil || s.partnerEmail == "" {
		return
	}
	msg := notify.NDARequestedNotice(s.partnerEmail, opp.CompanyName, opp.ContactName, opp.ContactEmail, envelopeID)
	if err := s.email.Send(ctx, msg); err != nil {
		// Notification is best-effort; the envelope is already out.
		s.logger.Error("partner notification failed", "opportunity_id", opp.ID, "error", err)
	}
}

// RecordBooking stores the booking reported by the scheduling widget's
// webhook and advances the stage.
func (s *Service) RecordBooking(ctx context.Context, token, eventURI, inviteeURI string, bookingTime time.Time) error {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.record_booking")
	defer span.End()

	updated, err := s.store.SetBooking(ctx, token, eventURI, inviteeURI, bookingTime)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !updated {
		return ErrOpportunityNotFound
	}
	s.logger.Info("booking recorded", "event_uri", eventURI, "booking_time", bookingTime)
	return nil
}

// CancelBooking clears the booking identified by its widget event URI.
func (s *Service) CancelBooking(ctx context.Context, eventURI string) error {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.cancel_booking")
	defer span.End()

	updated, err := s.store.ClearBooking(ctx, eventURI)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !updated {
		return ErrOpportunityNotFound
	}
	s.logger.Info("booking cancelled by prospect", "event_uri", eventURI)
	return nil
}

// SweepStaleBookings reverts bookings older than the cutoff where no NDA was
// requested, cancelling the widget event when a canceller is configured.
// Returns how many opportunities were reverted.
func (s *Service) SweepStaleBookings(ctx context.Context) (int, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.sweep_stale_bookings")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.staleCutoff)
	stale, err := s.store.ListStaleBookings(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	reverted := 0
	for _, sb := range stale {
		if s.canceller != nil && sb.SchedulerEventURI != "" {
			if err := s.canceller.CancelEvent(ctx, sb.SchedulerEventURI, "NDA not requested within the confirmation window"); err != nil {
				s.logger.Warn("widget event cancel failed", "event_uri", sb.SchedulerEventURI, "error", err)
			}
		}
		if err := s.store.RevertBooking(ctx, sb.ID); err != nil {
			span.RecordError(err)
			return reverted, err
		}
		reverted++
	}

	span.SetAttributes(attribute.Int("baxterlabs.reverted", reverted))
	if reverted > 0 {
		s.logger.Info("stale bookings reverted", "count", reverted)
	}
	return reverted, nil
}
