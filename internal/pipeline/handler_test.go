package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxterlabs/pipeline-platform/internal/nda"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

func newTestRouter(t *testing.T, sender nda.Sender, opts ...ServiceOption) (*chi.Mux, pgxmock.PgxPoolIface) {
	t.Helper()
	svc, mock := newTestService(t, sender, opts...)
	h := NewHandler(svc, logging.New("error"))
	r := chi.NewRouter()
	h.Routes(r)
	return r, mock
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestGetSchedulePage(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	mock.ExpectQuery("SELECT o.id, o.title, o.stage").
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows(oppColumns()).AddRow(oppRow(uuid.New(), nil)...))

	rec, body := doJSON(t, r, http.MethodGet, "/schedule/tok-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme Corp", body["company_name"])
	assert.Equal(t, "Dana Reyes", body["contact_name"])
	assert.Equal(t, false, body["nda_requested"])
	assert.Equal(t, "https://widget.example/baxterlabs", body["widget_url"])
}

func TestGetSchedulePageNotFound(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	mock.ExpectQuery("SELECT o.id, o.title, o.stage").
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)

	rec, body := doJSON(t, r, http.MethodGet, "/schedule/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Schedule link not found", body["error"])
}

func TestRequestNDAEndpoint(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	id := uuid.New()
	mock.ExpectQuery("SELECT o.id, o.title, o.stage").
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows(oppColumns()).AddRow(oppRow(id, nil)...))
	mock.ExpectExec("UPDATE pipeline_opportunities").
		WithArgs(id, "env-42", StageNDASent).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec, body := doJSON(t, r, http.MethodPost, "/schedule/tok-1/request-nda", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "env-42", body["envelope_id"])
}

func TestRequestNDAEndpointAlreadyRequested(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	requestedAt := time.Now().UTC()
	mock.ExpectQuery("SELECT o.id, o.title, o.stage").
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows(oppColumns()).AddRow(oppRow(uuid.New(), &requestedAt)...))

	rec, body := doJSON(t, r, http.MethodPost, "/schedule/tok-1/request-nda", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NDA has already been requested", body["error"])
}

func TestRequestNDAEndpointProviderFailure(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{err: errors.New("provider down")})

	mock.ExpectQuery("SELECT o.id, o.title, o.stage").
		WithArgs("tok-1").
		WillReturnRows(pgxmock.NewRows(oppColumns()).AddRow(oppRow(uuid.New(), nil)...))

	rec, body := doJSON(t, r, http.MethodPost, "/schedule/tok-1/request-nda", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "e-signature send failed", body["error"])
}

func TestSchedulerWebhookInviteeCreated(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	mock.ExpectExec("UPDATE pipeline_opportunities").
		WithArgs("tok-1", pgxmock.AnyArg(), "ev-1", "inv-1", StageDiscoveryScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	payload := `{
		"event": "invitee.created",
		"payload": {
			"event_uri": "ev-1",
			"invitee_uri": "inv-1",
			"scheduled_at": "2026-03-01T10:00:00Z",
			"tracking": {"utm_content": "tok-1"}
		}
	}`
	rec, body := doJSON(t, r, http.MethodPost, "/webhooks/scheduler", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestSchedulerWebhookInviteeCanceled(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	mock.ExpectExec("UPDATE pipeline_opportunities").
		WithArgs("ev-1", StageDiscoveryScheduled, StageContacted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	payload := `{"event": "invitee.canceled", "payload": {"event_uri": "ev-1"}}`
	rec, body := doJSON(t, r, http.MethodPost, "/webhooks/scheduler", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestSchedulerWebhookUnknownEventIgnored(t *testing.T) {
	r, _ := newTestRouter(t, &fakeSender{})

	payload := `{"event": "routing_form_submission.created", "payload": {}}`
	rec, body := doJSON(t, r, http.MethodPost, "/webhooks/scheduler", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ignored"])
}

func TestSchedulerWebhookUnknownTokenAcknowledged(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	mock.ExpectExec("UPDATE pipeline_opportunities").
		WithArgs("bad-token", pgxmock.AnyArg(), "ev-1", "inv-1", StageDiscoveryScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	payload := `{
		"event": "invitee.created",
		"payload": {
			"event_uri": "ev-1",
			"invitee_uri": "inv-1",
			"scheduled_at": "2026-03-01T10:00:00Z",
			"tracking": {"utm_content": "bad-token"}
		}
	}`
	rec, body := doJSON(t, r, http.MethodPost, "/webhooks/scheduler", payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ignored"])
}

func TestCheckNDATimeoutsEndpoint(t *testing.T) {
	r, mock := newTestRouter(t, &fakeSender{})

	id := uuid.New()
	mock.ExpectQuery("SELECT id, COALESCE").
		WithArgs(StageDiscoveryScheduled, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "scheduler_event_uri"}).AddRow(id, ""))
	mock.ExpectExec("UPDATE pipeline_opportunities").
		WithArgs(id, StageContacted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rec, body := doJSON(t, r, http.MethodPost, "/cron/check-nda-timeouts", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["cancelled"])
}
