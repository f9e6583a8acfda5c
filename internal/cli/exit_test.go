package cli

import "testing"

func TestExitError_DefaultsWithoutMessage(t *testing.T) {
	e := &ExitError{code: ExitPrivilegeRequired}
	if e.Error() != "exit 3" {
		t.Errorf("Error() = %q, want %q", e.Error(), "exit 3")
	}
	if e.Message() != "" {
		t.Errorf("Message() = %q, want empty", e.Message())
	}
}

func TestExitError_MessageTakesPrecedence(t *testing.T) {
	e := &ExitError{code: ExitInvalidConfig, message: "invalid config"}
	if e.Error() != "invalid config" {
		t.Errorf("Error() = %q, want %q", e.Error(), "invalid config")
	}
	if e.Code() != ExitInvalidConfig {
		t.Errorf("Code() = %d, want %d", e.Code(), ExitInvalidConfig)
	}
}

func TestExitError_NilDefaultsToExitOne(t *testing.T) {
	var e *ExitError
	if e.Code() != ExitFatal {
		t.Errorf("Code() on nil = %d, want %d", e.Code(), ExitFatal)
	}
	if e.Error() != "" {
		t.Errorf("Error() on nil = %q, want empty", e.Error())
	}
}
