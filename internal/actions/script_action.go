package actions

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
	"github.com/gatewatch/sentinel/internal/sandbox"
)

func scriptLogWarn(path, msg string) {
	log.Warn().Str("source", "action").Str("path", path).Msg(msg)
}

// scriptRunner is shared across every compiled scriptAction so the
// sandbox's source-cache amortises disk reads for rules that reuse the
// same script file with different entry functions.
var scriptRunner = sandbox.NewRunner()

// scriptAction runs a sandboxed Lua script, grounded on ScriptAction in
// original_source/actions/src/script_action.rs. Like Log, and unlike
// every other action kind, Script is never skipped in dry-run
// (SPEC_FULL.md §4.4): scripts run sandboxed, so they still execute and
// see real events, and suppressing their side effects is left to the
// script body itself.
type scriptAction struct {
	path     string
	function string
	timeout  time.Duration
	onError  string
}

func newScriptAction(ac config.ActionConfig) (Action, error) {
	if ac.Path == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "script action requires path"}
	}
	function := ac.Function
	if function == "" {
		function = "on_event"
	}
	timeout := time.Duration(ac.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	onError := ac.OnError
	switch onError {
	case "":
		onError = config.OnErrorFail
	case config.OnErrorFail, config.OnErrorContinue, config.OnErrorLog:
	default:
		return nil, &Error{Kind: ErrConfiguration, Msg: "script action on_error must be fail|continue|log"}
	}

	return &scriptAction{path: ac.Path, function: function, timeout: timeout, onError: onError}, nil
}

func (a *scriptAction) Kind() string { return "script" }

func (a *scriptAction) Execute(ctx context.Context, ev events.Event, _ bool) (Result, error) {
	in := sandbox.Input{
		ID:        ev.ID.String(),
		Timestamp: ev.Timestamp,
		Kind:      string(ev.Kind),
		Source:    ev.Source,
		Metadata:  ev.Metadata,
	}

	out, err := scriptRunner.Run(ctx, a.path, a.function, in, a.timeout)
	if err != nil {
		return a.handleError(err)
	}
	return Result{Success: out.Success, Message: out.Message}, nil
}

// handleError applies on_error per SPEC_FULL.md §4.5: fail propagates
// the error to the executor's own on_error handling, continue reports
// success so the rule's remaining actions still run, and log reports
// success after emitting the failure at warn level.
func (a *scriptAction) handleError(err error) (Result, error) {
	sbErr, _ := err.(*sandbox.Error)
	msg := err.Error()

	switch a.onError {
	case config.OnErrorContinue:
		return Result{Success: true, Message: "script error suppressed (on_error=continue): " + msg}, nil
	case config.OnErrorLog:
		scriptLogWarn(a.path, msg)
		return Result{Success: true, Message: "script error logged (on_error=log): " + msg}, nil
	default:
		if sbErr != nil && sbErr.Timeout {
			return Result{}, timeoutErr()
		}
		return Result{}, execErr("script %s: %s", a.path, msg)
	}
}

func (a *scriptAction) Describe() string {
	return "script: " + a.path + "#" + a.function
}
