// Package pipeline is the backend half of the discovery scheduling flow: the
// public schedule endpoints the portal polls, the NDA request path, the
// scheduling-widget webhook that records bookings, and the stale-booking
// sweep.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity stage values touched by the scheduling flow. The full pipeline
// carries more stages; this service only moves opportunities between these.
const (
	StageContacted          = "contacted"
	StageDiscoveryScheduled = "discovery_scheduled"
	StageNDASent            = "nda_sent"
	StageNDASigned          = "nda_signed"
)

// Opportunity is a pipeline opportunity joined with its company and primary
// contact, as the scheduling flow needs it.
type Opportunity struct {
	ID                uuid.UUID
	Title             string
	Stage             string
	CompanyName       string
	ContactName       string
	ContactEmail      string
	AssignedTo        string
	BookingTime       *time.Time
	SchedulerEventURI string
	NDARequestedAt    *time.Time
	NDAEnvelopeID     string
}

// NDARequested reports whether an NDA envelope has already gone out.
func (o *Opportunity) NDARequested() bool {
	return o != nil && o.NDARequestedAt != nil
}

// NDASigned reports whether the envelope completed.
func (o *Opportunity) NDASigned() bool {
	return o != nil && o.Stage == StageNDASigned
}
