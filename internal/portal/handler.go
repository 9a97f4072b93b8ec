package portal

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/net/websocket"

	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// InboundMessage is what the schedule page sends over the socket.
type InboundMessage struct {
	Type    string          `json:"type"` // "widget", "confirm_booked", "request_nda", "ping"
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler serves the scheduling page's live channel. The browser relays the
// embedded widget's postMessage events and the user's actions; the handler
// streams renderable state back.
type Handler struct {
	api           SessionAPI
	logger        *logging.Logger
	metrics       *metrics.PortalMetrics
	delays        []time.Duration
	fallbackDelay time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerDelays overrides the reconcile poll schedule for every view.
func WithHandlerDelays(delays []time.Duration) HandlerOption {
	return func(h *Handler) {
		if len(delays) > 0 {
			h.delays = delays
		}
	}
}

// WithHandlerFallbackDelay overrides the manual-control reveal delay.
func WithHandlerFallbackDelay(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.fallbackDelay = d
		}
	}
}

// WithHandlerMetrics attaches portal metrics.
func WithHandlerMetrics(pm *metrics.PortalMetrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = pm
	}
}

// NewHandler creates the portal transport handler.
func NewHandler(api SessionAPI, logger *logging.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		api:           api,
		logger:        logger,
		delays:        nil,
		fallbackDelay: 0,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleWebSocket upgrades to WebSocket and runs one page view.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		_ = websocket.JSON.Send(conn, Update{Type: "error", Error: "missing token parameter"})
		return
	}

	viewOpts := []ViewOption{
		WithLogger(h.logger),
		WithMetrics(h.metrics),
	}
	if len(h.delays) > 0 {
		viewOpts = append(viewOpts, WithReconcileDelays(h.delays))
	}
	if h.fallbackDelay > 0 {
		viewOpts = append(viewOpts, WithFallbackDelay(h.fallbackDelay))
	}

	view := NewView(h.api, token, func(u Update) {
		_ = websocket.JSON.Send(conn, u)
	}, viewOpts...)
	defer view.Close()

	if err := view.Open(r.Context()); err != nil {
		if errors.Is(err, schedule.ErrSessionNotFound) {
			_ = websocket.JSON.Send(conn, Update{Type: "error", Error: "schedule link not found"})
		} else {
			h.logger.Error("portal: initial fetch failed", "token", token, "error", err)
			_ = websocket.JSON.Send(conn, Update{Type: "error", Error: "unable to load scheduling session"})
		}
		return
	}

	h.logger.Info("portal: view opened", "token", token)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("portal: connection closed", "token", token, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, Update{Type: "pong"})
		case "widget":
			view.HandleWidgetMessage(msg.Payload)
		case "confirm_booked":
			view.ConfirmBooked()
		case "request_nda":
			view.RequestNDA(r.Context())
		default:
			// Unknown client messages are dropped, mirroring the
			// widget-signal policy.
		}
	}
}
