package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lookout/backend/internal/domain"
	"github.com/lookout/backend/internal/infrastructure/logger"
)

func TestWebhookDeliver(t *testing.T) {
	var got domain.NotificationEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second, logger.NewNop())
	event := domain.NotificationEvent{
		TaskID:   "t1",
		TaskName: "gpt-5 release watch",
		Message:  "GPT-5 has been released",
	}
	if err := d.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got.TaskID != "t1" || got.Message != "GPT-5 has been released" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookDeliverNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, time.Second, logger.NewNop())
	if err := d.Deliver(context.Background(), domain.NotificationEvent{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestWebhookChannelOverride(t *testing.T) {
	var overrideHit bool
	override := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		overrideHit = true
	}))
	defer override.Close()

	// Default URL points nowhere routable; the channel hint must win.
	d := NewWebhookDispatcher("http://127.0.0.1:1", time.Second, logger.NewNop())
	event := domain.NotificationEvent{
		Channels: domain.JSONB{"webhook_url": override.URL},
	}
	if err := d.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if !overrideHit {
		t.Fatal("per-task webhook override not used")
	}
}
