package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "secret")
	if err := n.Notify(context.Background(), "+15550100", KindRescheduled, map[string]any{"booking_id": "b1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["to"] != "+15550100" || got["template"] != KindRescheduled {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL, "").Notify(context.Background(), "1", KindPayoutSent, nil); err == nil {
		t.Fatal("expected error on 502")
	}
	if err := NewWebhookNotifier("", "").Notify(context.Background(), "1", KindPayoutSent, nil); err == nil {
		t.Fatal("expected error without url")
	}
}
