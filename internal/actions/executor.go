package actions

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// Invocation is the executor's view of one (rule, action) pair: enough
// to run the action and to know what to do if it fails. It mirrors
// rules.Invocation without importing package rules, which itself
// imports actions.
type Invocation struct {
	RuleName string
	Action   Action
	OnError  string // fail|continue|log, per config.OnError*
}

// Metrics is the executor's narrow view of telemetry, implemented by
// internal/telemetry so this package never imports it.
type Metrics interface {
	ActionExecuted(action, status string, d time.Duration)
	ActionDropped(action string)
}

// noopMetrics is used when no Metrics is supplied, so the executor
// never needs a nil check on the hot path.
type noopMetrics struct{}

func (noopMetrics) ActionExecuted(string, string, time.Duration) {}
func (noopMetrics) ActionDropped(string)                         {}

// defaultActionTimeouts bounds each action kind's wall-clock deadline
// per SPEC_FULL.md §4.4. Script actions also carry their own timeout
// (see scriptAction.timeout, from timeout_ms, default 30s); whichever
// of the two deadlines comes first ends the run.
var defaultActionTimeouts = map[string]time.Duration{
	"log":          5 * time.Second,
	"execute":      30 * time.Second,
	"powershell":   30 * time.Second,
	"http_request": 30 * time.Second,
	"notify":       5 * time.Second,
	"media":        5 * time.Second,
	"script":       30 * time.Second,
}

func timeoutFor(kind string) time.Duration {
	if d, ok := defaultActionTimeouts[kind]; ok {
		return d
	}
	return 30 * time.Second
}

// DefaultPoolSize is runtime.NumCPU() x 4, the worker count SPEC_FULL.md
// §4.4 sizes the bounded pool to.
func DefaultPoolSize() int {
	return runtime.NumCPU() * 4
}

// Executor is the bounded worker pool that runs a matched event's
// invocations. Each rule's ordered action list runs sequentially on a
// single goroutine, grounded on original_source's
// CompositeAction::execute; different rules run concurrently, admitted
// to the pool one action at a time so the pool's concurrency ceiling
// bounds total in-flight work rather than in-flight rules.
//
// Fan-out and per-task timeout are grounded on the teacher's
// pkgcheck.Orchestrator.CheckAll (internal/pkgcheck/orchestrator.go):
// a WaitGroup around one goroutine per unit of work, each wrapped in
// its own context.WithTimeout.
type Executor struct {
	pool      chan struct{}
	queueWait time.Duration
	metrics   Metrics
	dryRun    bool
	wg        sync.WaitGroup
}

// NewExecutor builds an Executor with a pool of poolSize tokens. A nil
// metrics disables telemetry without requiring callers to special-case
// it.
func NewExecutor(poolSize int, dryRun bool, metrics Metrics) *Executor {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		pool:      make(chan struct{}, poolSize),
		queueWait: 2 * time.Second,
		metrics:   metrics,
		dryRun:    dryRun,
	}
}

// Dispatch schedules invocations for ev. Invocations are grouped into
// runs of consecutive same-rule entries (the order rules.Evaluate
// always returns them in) and each run is handed to its own goroutine.
// Dispatch does not block the caller for longer than it takes to start
// those goroutines; call Wait (typically during shutdown) to drain
// in-flight work.
func (e *Executor) Dispatch(ctx context.Context, invocations []Invocation, ev events.Event) {
	for _, group := range groupByRule(invocations) {
		e.wg.Add(1)
		go func(group []Invocation) {
			defer e.wg.Done()
			e.runRule(ctx, group, ev)
		}(group)
	}
}

// groupByRule splits invocations into runs sharing the same RuleName,
// preserving order. rules.Evaluate always emits one rule's actions
// consecutively, so a single linear pass suffices.
func groupByRule(invocations []Invocation) [][]Invocation {
	var groups [][]Invocation
	for i := 0; i < len(invocations); {
		j := i + 1
		for j < len(invocations) && invocations[j].RuleName == invocations[i].RuleName {
			j++
		}
		groups = append(groups, invocations[i:j])
		i = j
	}
	return groups
}

// runRule executes one rule's actions in order on the calling
// goroutine, applying each action's on_error policy on failure. It
// mirrors CompositeAction::execute in original_source/actions/src/lib.rs:
// continue moves on, log warns and moves on, fail (the default) stops
// the remaining actions in this rule.
func (e *Executor) runRule(ctx context.Context, group []Invocation, ev events.Event) {
	for _, inv := range group {
		admitted, err := e.admit(ctx, inv)
		if admitted {
			_, err = e.run(ctx, inv, ev)
		}
		if err == nil {
			continue
		}
		if e.applyOnError(inv, err) {
			return
		}
	}
}

// applyOnError logs err per inv's on_error policy and reports whether
// the rule's remaining actions must be aborted. continue and log both
// proceed; fail (the default) aborts, mirroring
// CompositeAction::execute's Continue/SkipRemaining/Stop behavior.
func (e *Executor) applyOnError(inv Invocation, err error) (abort bool) {
	switch inv.OnError {
	case config.OnErrorContinue:
		log.Debug().Str("rule", inv.RuleName).Str("action", inv.Action.Kind()).Err(err).
			Msg("action failed, continuing (on_error=continue)")
		return false
	case config.OnErrorLog:
		log.Warn().Str("rule", inv.RuleName).Str("action", inv.Action.Kind()).Err(err).
			Msg("action failed (on_error=log)")
		return false
	default:
		log.Error().Str("rule", inv.RuleName).Str("action", inv.Action.Kind()).Err(err).
			Msg("action failed, aborting remaining actions of this rule (on_error=fail)")
		return true
	}
}

// admit acquires a pool token, waiting up to queueWait before treating
// the invocation as overflow: dropped, counted, and handed to its
// on_error policy exactly as a real execution failure would be, per
// SPEC_FULL.md §4.4.
func (e *Executor) admit(ctx context.Context, inv Invocation) (bool, error) {
	select {
	case e.pool <- struct{}{}:
		return true, nil
	default:
	}

	timer := time.NewTimer(e.queueWait)
	defer timer.Stop()
	select {
	case e.pool <- struct{}{}:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		e.metrics.ActionDropped(inv.Action.Kind())
		log.Warn().Str("rule", inv.RuleName).Str("action", inv.Action.Kind()).
			Msg("worker pool saturated, dropping invocation")
		return false, execErr("action %s dropped: worker pool saturated", inv.Action.Kind())
	}
}

func (e *Executor) release() { <-e.pool }

// run executes a single action under its own deadline. The dry-run
// flag is forwarded as-is; which kinds honour it is each Action's own
// concern (see action.go: every kind but Log and Script).
func (e *Executor) run(ctx context.Context, inv Invocation, ev events.Event) (Result, error) {
	defer e.release()

	actionCtx, cancel := context.WithTimeout(ctx, timeoutFor(inv.Action.Kind()))
	defer cancel()

	start := time.Now()
	result, err := inv.Action.Execute(actionCtx, ev, e.dryRun)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		if actionCtx.Err() == context.DeadlineExceeded {
			status = "timeout"
		}
	} else if !result.Success {
		status = "failed"
	}
	e.metrics.ActionExecuted(inv.Action.Kind(), status, duration)

	return result, err
}

// Wait blocks until every dispatched invocation has finished running.
// The supervisor calls this with a bounded context during shutdown.
func (e *Executor) Wait() {
	e.wg.Wait()
}
