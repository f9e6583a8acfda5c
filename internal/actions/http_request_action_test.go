package actions

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

func init() {
	httpRequestRetryDelay = time.Millisecond
}

func TestNewHTTPRequestActionRequiresURL(t *testing.T) {
	if _, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP}); err == nil {
		t.Fatal("expected error when url is missing")
	}
}

func TestNewHTTPRequestActionDefaultsToPost(t *testing.T) {
	a, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP, URL: "http://example.invalid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.(*httpRequestAction).method != http.MethodPost {
		t.Fatalf("expected default method POST, got %q", a.(*httpRequestAction).method)
	}
}

func TestHTTPRequestActionSendsTemplatedBody(t *testing.T) {
	var gotBody string
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Kind")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := newHTTPRequestAction(config.ActionConfig{
		Type:    config.ActionTypeHTTP,
		URL:     srv.URL,
		Body:    `{"kind":"{{.Kind}}"}`,
		Headers: map[string]string{"X-Kind": "{{EVENT_TYPE}}"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := events.New(events.KindFileCreated, "fw")
	res, err := a.Execute(context.Background(), ev, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if gotBody != `{"kind":"FileCreated"}` {
		t.Fatalf("unexpected body: %q", gotBody)
	}
	if gotHeader != "FileCreated" {
		t.Fatalf("unexpected header: %q", gotHeader)
	}
}

func TestHTTPRequestActionNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Execute(context.Background(), events.New(events.KindTimerTick, "timer"), false); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestHTTPRequestActionRetriesOnFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := a.Execute(context.Background(), events.New(events.KindTimerTick, "timer"), false)
	if err != nil {
		t.Fatalf("expected the second attempt to succeed, got: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestHTTPRequestActionGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := a.Execute(context.Background(), events.New(events.KindTimerTick, "timer"), false); err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != httpRequestMaxRetries+1 {
		t.Fatalf("calls = %d, want %d", calls, httpRequestMaxRetries+1)
	}
}

func TestHTTPRequestActionDryRunSkipsSending(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	a, err := newHTTPRequestAction(config.ActionConfig{Type: config.ActionTypeHTTP, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := a.Execute(context.Background(), events.New(events.KindTimerTick, "timer"), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || called {
		t.Fatal("expected dry-run to skip the actual request")
	}
}
