// Package actions implements the discriminated Action value type and
// the concrete side-effecting operations dispatched when a rule
// matches: Log, Execute, PowerShell, HttpRequest, Notify, Media, and
// Script.
package actions

import (
	"context"
	"fmt"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// Result is the outcome of one action invocation.
type Result struct {
	Success bool
	Message string
}

// ErrorKind discriminates the taxonomy of action failures named in
// SPEC_FULL.md §7.
type ErrorKind int

const (
	ErrExecution ErrorKind = iota
	ErrConfiguration
	ErrTimeout
)

// Error is the error type actions return. Kind lets the executor and
// telemetry distinguish a timeout from an ordinary execution failure
// without string matching.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrTimeout:
		return "action timed out"
	case ErrConfiguration:
		return fmt.Sprintf("configuration error: %s", e.Msg)
	default:
		return fmt.Sprintf("execution error: %s", e.Msg)
	}
}

func execErr(format string, args ...any) *Error {
	return &Error{Kind: ErrExecution, Msg: fmt.Sprintf(format, args...)}
}

func timeoutErr() *Error { return &Error{Kind: ErrTimeout} }

// Action is a stateless, side-effecting operation. The executor owns
// its runtime resources (worker slot, deadline); Action.Execute must
// respect ctx's deadline and cancellation.
type Action interface {
	// Kind names the action for actions_executed_total{action=...}.
	Kind() string
	// Execute runs the action against ev. dryRun is honoured by every
	// kind except Log and Script, per SPEC_FULL.md §4.4.
	Execute(ctx context.Context, ev events.Event, dryRun bool) (Result, error)
	// Describe returns a short human-readable summary for logs.
	Describe() string
}

// Compile lowers a surface-syntax ActionConfig to a concrete Action,
// validating its required fields.
func Compile(ac config.ActionConfig) (Action, error) {
	switch ac.Type {
	case config.ActionTypeLog:
		return newLogAction(ac)
	case config.ActionTypeExecute:
		return newExecuteAction(ac)
	case config.ActionTypePowerShell:
		return newPowerShellAction(ac)
	case config.ActionTypeHTTP:
		return newHTTPRequestAction(ac)
	case config.ActionTypeNotify:
		return newNotifyAction(ac)
	case config.ActionTypeMedia:
		return newMediaAction(ac)
	case config.ActionTypeScript:
		return newScriptAction(ac)
	default:
		return nil, &Error{Kind: ErrConfiguration, Msg: fmt.Sprintf("unknown action type %q", ac.Type)}
	}
}
