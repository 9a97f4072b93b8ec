// Package notify sends partner-facing email notifications for pipeline
// events.
package notify

import (
	"context"
	"fmt"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// EmailSender defines the interface for sending emails.
// Implementations can be swapped (SES, SMTP, stub) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage represents an email to be sent.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // Plain text body
	HTML    string // Optional HTML body
}

// NDARequestedNotice builds the partner notification sent when a prospect
// requests the NDA from the schedule page.
func NDARequestedNotice(partnerEmail, companyName, contactName, contactEmail, envelopeID string) EmailMessage {
	return EmailMessage{
		To:      partnerEmail,
		Subject: fmt.Sprintf("NDA requested: %s", companyName),
		Body: fmt.Sprintf(
			"%s (%s) at %s requested the NDA from the discovery schedule page.\n\n"+
				"Envelope: %s\n\n"+
				"The envelope has been sent for signature. No action needed until it completes.",
			contactName, contactEmail, companyName, envelopeID,
		),
	}
}

// StubEmailSender is a no-op sender for testing or when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

// NewStubEmailSender creates a stub email sender that logs but doesn't send.
func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

// Send logs the email but doesn't actually send it.
func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send email", "to", msg.To, "subject", msg.Subject)
	return nil
}
