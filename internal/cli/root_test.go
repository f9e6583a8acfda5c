package cli

import (
	"errors"
	"testing"
)

func TestNewRoot_FlagsRegistered(t *testing.T) {
	cmd := NewRoot("1.2.3")

	for _, name := range []string{
		"config", "config-dir", "dry-run", "log-level", "no-watch",
		"status", "install", "uninstall", "run-service", "telemetry-addr",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected --%s to be registered", name)
		}
	}

	if cmd.Version != "1.2.3" {
		t.Errorf("Version = %q, want %q", cmd.Version, "1.2.3")
	}
}

func TestRunEngine_FailsFastWithoutConfig(t *testing.T) {
	// No --config or --config-dir supplied: runEngine must fail during
	// loadAndValidate, before it ever touches cmd.Context(), with exit
	// code 2.
	err := runEngine(NewRoot("dev"), &rootOptions{})

	var ee *ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected an *ExitError, got %v", err)
	}
	if ee.Code() != 2 {
		t.Errorf("Code() = %d, want 2", ee.Code())
	}
}
