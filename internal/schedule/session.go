// Package schedule holds the prospect-facing scheduling session model and the
// HTTP client used to read it from the pipeline service.
package schedule

import (
	"net/url"
	"time"
)

// Session is a point-in-time snapshot of one scheduling/NDA session as the
// backend sees it. Snapshots are immutable; a fresh read replaces the whole
// value.
type Session struct {
	CompanyName  string     `json:"company_name"`
	ContactName  string     `json:"contact_name,omitempty"`
	ContactEmail string     `json:"contact_email,omitempty"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	BookingTime  *time.Time `json:"booking_time,omitempty"`
	NDARequested bool       `json:"nda_requested"`
	NDASigned    bool       `json:"nda_signed"`
	Stage        string     `json:"stage"`
	WidgetURL    string     `json:"widget_url,omitempty"`
}

// Booked reports whether the backend has an authoritative booking time.
func (s *Session) Booked() bool {
	return s != nil && s.BookingTime != nil
}

// NDATerminal reports whether the NDA flow already reached a terminal state
// for this session (requested or signed).
func (s *Session) NDATerminal() bool {
	return s != nil && (s.NDARequested || s.NDASigned)
}

// Valid checks the nda_signed implies nda_requested invariant. A snapshot
// violating it indicates a backend bug; callers log and treat signed as
// authoritative.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}
	return !s.NDASigned || s.NDARequested
}

// WidgetEmbedURL builds the embed URL for the scheduling widget, pre-filling
// the contact's name and email as query parameters. Returns "" when the
// session carries no widget URL.
func (s *Session) WidgetEmbedURL() string {
	if s == nil || s.WidgetURL == "" {
		return ""
	}
	u, err := url.Parse(s.WidgetURL)
	if err != nil {
		return s.WidgetURL
	}
	q := u.Query()
	if s.ContactName != "" {
		q.Set("name", s.ContactName)
	}
	if s.ContactEmail != "" {
		q.Set("email", s.ContactEmail)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
