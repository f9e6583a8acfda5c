package actions

import (
	"context"
	"testing"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

func TestNewLogActionRequiresMessage(t *testing.T) {
	if _, err := newLogAction(config.ActionConfig{Type: config.ActionTypeLog}); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestNewLogActionDefaultsLevelToInfo(t *testing.T) {
	a, err := newLogAction(config.ActionConfig{Type: config.ActionTypeLog, Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	la := a.(*logAction)
	if la.level.String() != "info" {
		t.Fatalf("expected default level info, got %v", la.level)
	}
}

func TestLogActionNeverFails(t *testing.T) {
	a, err := newLogAction(config.ActionConfig{Type: config.ActionTypeLog, Message: "event is {{EVENT_TYPE}}", Level: "warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev := events.New(events.KindFileCreated, "fw")
	res, err := a.Execute(context.Background(), ev, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected log action to always report success")
	}
}

func TestNewLogActionRejectsBadLevel(t *testing.T) {
	if _, err := newLogAction(config.ActionConfig{Type: config.ActionTypeLog, Message: "x", Level: "not-a-level"}); err == nil {
		t.Fatal("expected error for invalid level")
	}
}
