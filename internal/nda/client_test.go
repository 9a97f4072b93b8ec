package nda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

func TestSendNDA(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/envelopes" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		var req EnvelopeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ContactEmail != "dana@acme.example" {
			t.Errorf("ContactEmail = %q", req.ContactEmail)
		}
		if req.TemplateID != "tmpl-nda-1" {
			t.Errorf("TemplateID = %q, want tmpl-nda-1", req.TemplateID)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Envelope{ID: "env-42", Status: "sent"})
	}))
	defer srv.Close()

	client := NewEnvelopeClient(srv.URL, "key-1",
		WithLogger(logging.New("error")),
		WithTemplateID("tmpl-nda-1"),
	)
	env, err := client.SendNDA(context.Background(), EnvelopeRequest{
		OpportunityID: "opp-1",
		CompanyName:   "Acme Corp",
		ContactName:   "Dana Reyes",
		ContactEmail:  "dana@acme.example",
	})
	if err != nil {
		t.Fatalf("SendNDA: %v", err)
	}
	if env.ID != "env-42" {
		t.Errorf("envelope ID = %q, want env-42", env.ID)
	}
}

func TestSendNDAProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "recipient email invalid"})
	}))
	defer srv.Close()

	client := NewEnvelopeClient(srv.URL, "key-1", WithLogger(logging.New("error")))
	_, err := client.SendNDA(context.Background(), EnvelopeRequest{ContactEmail: "bad"})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusUnprocessableEntity || pe.Reason != "recipient email invalid" {
		t.Errorf("ProviderError = %+v", pe)
	}
}

func TestDisabledSender(t *testing.T) {
	d := NewDisabled(logging.New("error"))
	_, err := d.SendNDA(context.Background(), EnvelopeRequest{OpportunityID: "opp-1"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
