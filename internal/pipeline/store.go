package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrOpportunityNotFound is returned when a token or event URI resolves to no
// live opportunity.
var ErrOpportunityNotFound = errors.New("pipeline: opportunity not found")

// PgxPool is the slice of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists pipeline opportunities in Postgres.
type Store struct {
	pool PgxPool
}

// NewStore creates a store backed by a pgx pool.
func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("pipeline: pgx pool required")
	}
	return &Store{pool: pool}
}

const getByTokenQuery = `
	SELECT o.id, o.title, o.stage,
	       c.name, ct.name, ct.email,
	       o.assigned_to, o.booking_time, o.scheduler_event_uri,
	       o.nda_requested_at, o.nda_envelope_id
	FROM pipeline_opportunities o
	JOIN pipeline_companies c ON c.id = o.company_id
	LEFT JOIN pipeline_contacts ct ON ct.id = o.primary_contact_id
	WHERE o.nda_confirmation_token = $1 AND o.is_deleted = FALSE
`

// GetByToken loads the opportunity addressed by its confirmation token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Opportunity, error) {
	row := s.pool.QueryRow(ctx, getByTokenQuery, token)

	var (
		opp          Opportunity
		contactName  *string
		contactEmail *string
		assignedTo   *string
		eventURI     *string
		envelopeID   *string
	)
	if err := row.Scan(
		&opp.ID,
		&opp.Title,
		&opp.Stage,
		&opp.CompanyName,
		&contactName,
		&contactEmail,
		&assignedTo,
		&opp.BookingTime,
		&eventURI,
		&opp.NDARequestedAt,
		&envelopeID,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("pipeline: select by token: %w", err)
	}

	if contactName != nil {
		opp.ContactName = *contactName
	}
	if contactEmail != nil {
		opp.ContactEmail = *contactEmail
	}
	if assignedTo != nil {
		opp.AssignedTo = *assignedTo
	}
	if eventURI != nil {
		opp.SchedulerEventURI = *eventURI
	}
	if envelopeID != nil {
		opp.NDAEnvelopeID = *envelopeID
	}
	return &opp, nil
}

// MarkNDARequested records the sent envelope and advances the stage. The
// update is conditional on no prior request, so a concurrent duplicate loses
// and gets updated=false.
func (s *Store) MarkNDARequested(ctx context.Context, id uuid.UUID, envelopeID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_opportunities
		SET nda_envelope_id = $2, nda_requested_at = NOW(), stage = $3
		WHERE id = $1 AND nda_requested_at IS NULL AND is_deleted = FALSE
	`, id, envelopeID, StageNDASent)
	if err != nil {
		return false, fmt.Errorf("pipeline: mark nda requested: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetBooking records the widget's booking for the opportunity addressed by
// token and advances the stage.
func (s *Store) SetBooking(ctx context.Context, token, eventURI, inviteeURI string, bookingTime time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_opportunities
		SET booking_time = $2, scheduler_event_uri = $3, scheduler_invitee_uri = $4, stage = $5
		WHERE nda_confirmation_token = $1 AND is_deleted = FALSE
	`, token, bookingTime, eventURI, inviteeURI, StageDiscoveryScheduled)
	if err != nil {
		return false, fmt.Errorf("pipeline: set booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearBooking drops the booking identified by its scheduler event URI and
// moves the opportunity back to contacted, used when the prospect cancels
// from the widget.
func (s *Store) ClearBooking(ctx context.Context, eventURI string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_opportunities
		SET booking_time = NULL, scheduler_event_uri = NULL, scheduler_invitee_uri = NULL,
		    stage = CASE WHEN stage = $2 THEN $3 ELSE stage END
		WHERE scheduler_event_uri = $1 AND is_deleted = FALSE
	`, eventURI, StageDiscoveryScheduled, StageContacted)
	if err != nil {
		return false, fmt.Errorf("pipeline: clear booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StaleBooking identifies a booking whose NDA never went out.
type StaleBooking struct {
	ID                uuid.UUID
	SchedulerEventURI string
}

// ListStaleBookings returns discovery-scheduled opportunities whose booking
// is older than cutoff and where no NDA was requested.
func (s *Store) ListStaleBookings(ctx context.Context, cutoff time.Time) ([]StaleBooking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(scheduler_event_uri, '')
		FROM pipeline_opportunities
		WHERE stage = $1
		  AND booking_time IS NOT NULL
		  AND booking_time < $2
		  AND nda_requested_at IS NULL
		  AND is_deleted = FALSE
	`, StageDiscoveryScheduled, cutoff)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list stale bookings: %w", err)
	}
	defer rows.Close()

	var stale []StaleBooking
	for rows.Next() {
		var sb StaleBooking
		if err := rows.Scan(&sb.ID, &sb.SchedulerEventURI); err != nil {
			return nil, fmt.Errorf("pipeline: scan stale booking: %w", err)
		}
		stale = append(stale, sb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: iterate stale bookings: %w", err)
	}
	return stale, nil
}

// RevertBooking drops a stale booking and moves the opportunity back to
// contacted so the partner can re-engage.
func (s *Store) RevertBooking(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_opportunities
		SET stage = $2, booking_time = NULL, scheduler_event_uri = NULL, scheduler_invitee_uri = NULL
		WHERE id = $1
	`, id, StageContacted)
	if err != nil {
		return fmt.Errorf("pipeline: revert booking: %w", err)
	}
	return nil
}
