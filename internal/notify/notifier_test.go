package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordSender) Send(_ context.Context, title, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventFilter(t *testing.T) {
	s := &recordSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"stale_position", "close_failed"}, discardLogger())
	ctx := context.Background()

	delivered, err := n.Notify(ctx, "stale_position", "stuck", "msg")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !delivered {
		t.Error("delivered = false for an allowed event")
	}
	delivered, err = n.Notify(ctx, "trade_opened", "ignored", "msg")
	if err != nil {
		t.Fatalf("Notify filtered event: %v", err)
	}
	if delivered {
		t.Error("delivered = true for a filtered-out event")
	}
	if len(s.titles) != 1 || s.titles[0] != "stuck" {
		t.Errorf("delivered = %v, want only the allowed event", s.titles)
	}

	// NotifyAll bypasses the filter.
	if err := n.NotifyAll(ctx, "urgent", "msg"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if len(s.titles) != 2 {
		t.Errorf("delivered = %v, want NotifyAll to bypass the filter", s.titles)
	}
}

func TestNotifyEmptyFilterAdmitsEverything(t *testing.T) {
	s := &recordSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	delivered, err := n.Notify(context.Background(), "anything", "t", "m")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !delivered || len(s.titles) != 1 {
		t.Errorf("delivered = %v (%v), want 1", s.titles, delivered)
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("webhook 500")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "title", "msg")
	if err == nil {
		t.Fatal("expected a combined error")
	}
	if !strings.Contains(err.Error(), "bad") {
		t.Errorf("error %q does not name the failed sender", err)
	}
	if len(good.titles) != 1 {
		t.Errorf("good sender got %v, delivery must continue past failures", good.titles)
	}
}

func TestNotifierWithNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Errorf("NotifyAll: %v", err)
	}
}

func TestDiscordSenderPayload(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "risk alert", "BTCUSDT stop loss"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload["content"] != "**risk alert**\nBTCUSDT stop loss" {
		t.Errorf("content = %q", payload["content"])
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "t", "m"); err == nil {
		t.Error("expected an error for a non-2xx response")
	}
}
