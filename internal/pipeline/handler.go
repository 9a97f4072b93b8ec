package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// Handler exposes the public schedule endpoints and the widget webhook.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the pipeline HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the handler's endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/schedule/{token}", h.GetSchedulePage)
	r.Post("/schedule/{token}/request-nda", h.RequestNDA)
	r.Post("/webhooks/scheduler", h.SchedulerWebhook)
	r.Post("/cron/check-nda-timeouts", h.CheckNDATimeouts)
}

// GetSchedulePage handles GET /schedule/{token}. Public: the token is the
// credential.
func (h *Handler) GetSchedulePage(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	session, err := h.service.ScheduleView(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrOpportunityNotFound) {
			writeError(w, http.StatusNotFound, "Schedule link not found")
			return
		}
		h.logger.Error("schedule view failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// RequestNDA handles POST /schedule/{token}/request-nda.
func (h *Handler) RequestNDA(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	envelopeID, err := h.service.RequestNDA(r.Context(), token)
	if err != nil {
		var provider *ProviderUnavailableError
		switch {
		case errors.Is(err, ErrOpportunityNotFound):
			writeError(w, http.StatusNotFound, "Schedule link not found")
		case errors.Is(err, ErrNDAAlreadyRequested):
			writeError(w, http.StatusBadRequest, "NDA has already been requested")
		case errors.Is(err, ErrContactEmailMissing):
			writeError(w, http.StatusBadRequest, "Contact email missing")
		case errors.As(err, &provider):
			h.logger.Error("nda provider failure", "error", err)
			writeError(w, http.StatusBadGateway, "e-signature send failed")
		default:
			h.logger.Error("nda request failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"envelope_id": envelopeID,
	})
}

// schedulerWebhookPayload is the slice of the widget vendor's webhook body
// this service reads. The confirmation token travels in the embed's UTM
// content field.
type schedulerWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		EventURI    string     `json:"event_uri"`
		InviteeURI  string     `json:"invitee_uri"`
		ScheduledAt *time.Time `json:"scheduled_at"`
		Tracking    struct {
			UTMContent string `json:"utm_content"`
		} `json:"tracking"`
	} `json:"payload"`
}

// SchedulerWebhook handles POST /webhooks/scheduler. Only the booking-time
// flags are processed; everything else the vendor sends is ignored.
func (h *Handler) SchedulerWebhook(w http.ResponseWriter, r *http.Request) {
	var payload schedulerWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var err error
	switch payload.Event {
	case "invitee.created":
		token := payload.Payload.Tracking.UTMContent
		if token == "" || payload.Payload.ScheduledAt == nil {
			writeError(w, http.StatusBadRequest, "missing token or scheduled time")
			return
		}
		err = h.service.RecordBooking(r.Context(), token,
			payload.Payload.EventURI, payload.Payload.InviteeURI, *payload.Payload.ScheduledAt)
	case "invitee.canceled":
		err = h.service.CancelBooking(r.Context(), payload.Payload.EventURI)
	default:
		h.logger.Debug("scheduler webhook ignored", "event", payload.Event)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
		return
	}

	if err != nil {
		if errors.Is(err, ErrOpportunityNotFound) {
			// The vendor retries on non-2xx; an unknown token will never
			// start matching, so acknowledge and drop.
			h.logger.Warn("scheduler webhook for unknown opportunity", "event", payload.Event)
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "ignored": true})
			return
		}
		h.logger.Error("scheduler webhook failed", "event", payload.Event, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CheckNDATimeouts handles POST /cron/check-nda-timeouts.
func (h *Handler) CheckNDATimeouts(w http.ResponseWriter, r *http.Request) {
	reverted, err := h.service.SweepStaleBookings(r.Context())
	if err != nil {
		h.logger.Error("stale booking sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": reverted})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
