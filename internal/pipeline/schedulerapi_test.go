package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

func TestWidgetAPICancelEvent(t *testing.T) {
	var gotReason string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/ev-1/cancellation" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotReason = body["reason"]
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := NewWidgetAPIClient("key-1", WithWidgetLogger(logging.New("error")))
	err := client.CancelEvent(context.Background(), srv.URL+"/events/ev-1", "no NDA")
	if err != nil {
		t.Fatalf("CancelEvent: %v", err)
	}
	if gotReason != "no NDA" {
		t.Errorf("reason = %q", gotReason)
	}
}

func TestWidgetAPICancelEventUnconfigured(t *testing.T) {
	client := NewWidgetAPIClient("", WithWidgetLogger(logging.New("error")))
	if err := client.CancelEvent(context.Background(), "https://api.widget.example/events/ev-1", "x"); err != nil {
		t.Fatalf("unconfigured cancel should no-op, got %v", err)
	}
}
