package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTelegramNotifierSendsMessage(t *testing.T) {
	var payload map[string]string
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	notifier := NewTelegramNotifier("test-token", "12345", nil).WithBaseURL(server.URL)

	notifier.Notify(context.Background(), 1, KindPositionClosed,
		"Take profit hit", "Closed 2 btc_idr at 110")

	if path != "/bottest-token/sendMessage" {
		t.Fatalf("unexpected request path %q", path)
	}
	if payload["chat_id"] != "12345" {
		t.Fatalf("expected the default chat id, got %q", payload["chat_id"])
	}
	if payload["text"] == "" {
		t.Fatal("expected a message body")
	}
}

func TestTelegramNotifierDropsWithoutChat(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer server.Close()

	notifier := NewTelegramNotifier("test-token", "", nil).WithBaseURL(server.URL)

	// No user lookup and no default chat: the event is dropped silently.
	notifier.Notify(context.Background(), 1, KindSignalCreated, "New signal", "buy btc_idr")

	if called {
		t.Fatal("expected no API call without a chat id")
	}
}

func TestTelegramNotifierSwallowsRejections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	notifier := NewTelegramNotifier("bad-token", "12345", nil).WithBaseURL(server.URL)

	// Must not panic or surface anything; delivery is fire and forget.
	notifier.Notify(context.Background(), 1, KindOrderFilled, "Buy order filled", "bought")
}
