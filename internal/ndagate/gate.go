// Package ndagate owns the NDA request stage of the scheduling portal. The
// gate becomes reachable once the reconciliation machine reaches a terminal
// phase; its one action is idempotent across repeat visits with the same
// token.
package ndagate

import (
	"context"
	"errors"
	"sync"

	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// Status is what the gate renders.
type Status string

const (
	// StatusNotSent: booking confirmed, NDA not yet requested; the action
	// control is live.
	StatusNotSent Status = "not_sent"
	// StatusSending: a request is in flight; the control is disabled.
	StatusSending Status = "sending"
	// StatusSent: the NDA went out, awaiting signature. Terminal.
	StatusSent Status = "sent"
	// StatusSigned: the NDA is already signed. Terminal.
	StatusSigned Status = "signed"
	// StatusError: the last request failed; inline reason, control
	// re-enabled for a manual retry.
	StatusError Status = "error"
)

// ErrRequestInFlight is returned when Request is called while a previous call
// has not resolved. Client-side mutual exclusion only; the token-scoped
// action is expected to come from one user in one tab.
var ErrRequestInFlight = errors.New("ndagate: request already in flight")

// NDARequester issues the single side-effecting call.
type NDARequester interface {
	RequestNDA(ctx context.Context, token string) (*schedule.NDAReceipt, error)
}

// View is the gate's renderable state.
type View struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Gate tracks one page view's NDA request state. Terminal once sent or
// signed; no reset.
type Gate struct {
	requester NDARequester
	token     string
	logger    *logging.Logger
	metrics   *metrics.PortalMetrics

	mu      sync.Mutex
	sending bool
	sent    bool
	lastErr string
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithMetrics attaches portal metrics.
func WithMetrics(pm *metrics.PortalMetrics) Option {
	return func(g *Gate) {
		g.metrics = pm
	}
}

// NewGate creates the gate for one session token.
func NewGate(requester NDARequester, token string, opts ...Option) *Gate {
	g := &Gate{
		requester: requester,
		token:     token,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ViewFor derives the renderable status from the current session snapshot
// plus the gate's own request state. A snapshot that already shows the NDA
// requested or signed short-circuits to the terminal view, whatever this
// page view did.
func (g *Gate) ViewFor(snapshot *schedule.Session) View {
	if snapshot != nil {
		if snapshot.NDASigned {
			return View{Status: StatusSigned}
		}
		if snapshot.NDARequested {
			return View{Status: StatusSent}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.sent:
		return View{Status: StatusSent}
	case g.sending:
		return View{Status: StatusSending}
	case g.lastErr != "":
		return View{Status: StatusError, Error: g.lastErr}
	default:
		return View{Status: StatusNotSent}
	}
}

// Request issues the request-nda call. Invoked only by explicit user action.
// Repeated clicks while a call is outstanding return ErrRequestInFlight
// without touching the network; a snapshot already in a terminal NDA state
// skips the call entirely.
func (g *Gate) Request(ctx context.Context, snapshot *schedule.Session) error {
	if snapshot.NDATerminal() {
		g.mu.Lock()
		g.sent = true
		g.mu.Unlock()
		return nil
	}

	g.mu.Lock()
	if g.sent {
		g.mu.Unlock()
		return nil
	}
	if g.sending {
		g.mu.Unlock()
		return ErrRequestInFlight
	}
	g.sending = true
	g.lastErr = ""
	g.mu.Unlock()

	receipt, err := g.requester.RequestNDA(ctx, g.token)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sending = false

	if err != nil {
		// A race with the webhook-driven path already sent it; that is
		// the terminal outcome we wanted.
		if errors.Is(err, schedule.ErrNDAAlreadyRequested) {
			g.sent = true
			g.metrics.ObserveNDARequest("already_requested")
			g.logger.Info("nda already requested by another path", "token", g.token)
			return nil
		}
		g.lastErr = err.Error()
		g.metrics.ObserveNDARequest("error")
		g.logger.Error("nda request failed", "token", g.token, "error", err)
		return err
	}

	g.sent = true
	g.metrics.ObserveNDARequest("sent")
	g.logger.Info("nda request sent", "token", g.token, "envelope_id", receipt.EnvelopeID)
	return nil
}
