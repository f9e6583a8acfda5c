package actions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// fakeAction is a minimal Action test double: it records how many
// times it ran and returns whatever result/error/delay it's configured
// with.
type fakeAction struct {
	kind  string
	delay time.Duration
	err   error
	runs  atomic.Int32
}

func (f *fakeAction) Kind() string { return f.kind }
func (f *fakeAction) Execute(ctx context.Context, _ events.Event, _ bool) (Result, error) {
	f.runs.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, timeoutErr()
		}
	}
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Success: true}, nil
}
func (f *fakeAction) Describe() string { return f.kind }

func newTestExecutor() *Executor {
	return NewExecutor(4, false, nil)
}

func TestDispatchRunsEveryInvocation(t *testing.T) {
	e := newTestExecutor()
	a1 := &fakeAction{kind: "log"}
	a2 := &fakeAction{kind: "log"}

	e.Dispatch(context.Background(), []Invocation{
		{RuleName: "r1", Action: a1, OnError: config.OnErrorFail},
		{RuleName: "r1", Action: a2, OnError: config.OnErrorFail},
	}, events.New(events.KindTimerTick, "t"))
	e.Wait()

	if a1.runs.Load() != 1 || a2.runs.Load() != 1 {
		t.Fatalf("expected both actions to run once, got %d and %d", a1.runs.Load(), a2.runs.Load())
	}
}

func TestRunRuleFailAbortsRemainingActions(t *testing.T) {
	e := newTestExecutor()
	failing := &fakeAction{kind: "execute", err: execErr("boom")}
	after := &fakeAction{kind: "log"}

	e.Dispatch(context.Background(), []Invocation{
		{RuleName: "r1", Action: failing, OnError: config.OnErrorFail},
		{RuleName: "r1", Action: after, OnError: config.OnErrorFail},
	}, events.New(events.KindTimerTick, "t"))
	e.Wait()

	if after.runs.Load() != 0 {
		t.Fatalf("expected the action after a fail-policy failure to be skipped, got %d runs", after.runs.Load())
	}
}

func TestRunRuleContinuePolicyRunsRemainingActions(t *testing.T) {
	e := newTestExecutor()
	failing := &fakeAction{kind: "execute", err: execErr("boom")}
	after := &fakeAction{kind: "log"}

	e.Dispatch(context.Background(), []Invocation{
		{RuleName: "r1", Action: failing, OnError: config.OnErrorContinue},
		{RuleName: "r1", Action: after, OnError: config.OnErrorContinue},
	}, events.New(events.KindTimerTick, "t"))
	e.Wait()

	if after.runs.Load() != 1 {
		t.Fatalf("expected the action after a continue-policy failure to still run, got %d runs", after.runs.Load())
	}
}

func TestRunRuleLogPolicyRunsRemainingActions(t *testing.T) {
	e := newTestExecutor()
	failing := &fakeAction{kind: "execute", err: execErr("boom")}
	after := &fakeAction{kind: "log"}

	e.Dispatch(context.Background(), []Invocation{
		{RuleName: "r1", Action: failing, OnError: config.OnErrorLog},
		{RuleName: "r1", Action: after, OnError: config.OnErrorLog},
	}, events.New(events.KindTimerTick, "t"))
	e.Wait()

	if after.runs.Load() != 1 {
		t.Fatalf("expected the action after a log-policy failure to still run, got %d runs", after.runs.Load())
	}
}

func TestGroupByRuleKeepsConsecutiveRunsTogether(t *testing.T) {
	a := &fakeAction{kind: "log"}
	invocations := []Invocation{
		{RuleName: "r1", Action: a},
		{RuleName: "r1", Action: a},
		{RuleName: "r2", Action: a},
		{RuleName: "r1", Action: a},
	}
	groups := groupByRule(invocations)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups (r1,r1 / r2 / r1), got %d", len(groups))
	}
	if len(groups[0]) != 2 || len(groups[1]) != 1 || len(groups[2]) != 1 {
		t.Fatalf("unexpected group sizes: %v", groups)
	}
}

func TestDifferentRulesRunConcurrently(t *testing.T) {
	e := NewExecutor(8, false, nil)
	slow := func() *fakeAction {
		return &fakeAction{kind: "execute", delay: 50 * time.Millisecond}
	}
	a1, a2 := slow(), slow()

	start := time.Now()
	e.Dispatch(context.Background(), []Invocation{{RuleName: "r1", Action: a1, OnError: config.OnErrorFail}}, events.New(events.KindTimerTick, "t"))
	e.Dispatch(context.Background(), []Invocation{{RuleName: "r2", Action: a2, OnError: config.OnErrorFail}}, events.New(events.KindTimerTick, "t"))
	e.Wait()
	elapsed := time.Since(start)

	if a1.runs.Load() != 1 || a2.runs.Load() != 1 {
		t.Fatalf("expected both rules' actions to run, got %d and %d", a1.runs.Load(), a2.runs.Load())
	}
	if elapsed > 90*time.Millisecond {
		t.Fatalf("expected the two rules to run concurrently (~50ms), took %v", elapsed)
	}
}

func TestAdmitDropsWhenPoolSaturatedBeyondQueueWait(t *testing.T) {
	e := NewExecutor(1, false, nil)
	e.queueWait = 20 * time.Millisecond
	e.pool <- struct{}{} // saturate the single slot

	inv := Invocation{RuleName: "r1", Action: &fakeAction{kind: "execute"}, OnError: config.OnErrorFail}
	admitted, err := e.admit(context.Background(), inv)
	if admitted || err == nil {
		t.Fatal("expected admit to report overflow once the pool and queue wait are exhausted")
	}
}

func TestDryRunIsPassedToActions(t *testing.T) {
	e := NewExecutor(4, true, nil)
	seen := &dryRunSpy{}
	e.Dispatch(context.Background(), []Invocation{{RuleName: "r1", Action: seen, OnError: config.OnErrorFail}}, events.New(events.KindTimerTick, "t"))
	e.Wait()
	if !seen.sawDryRun {
		t.Fatal("expected the executor's dryRun flag to reach Action.Execute")
	}
}

type dryRunSpy struct {
	sawDryRun bool
}

func (d *dryRunSpy) Kind() string { return "execute" }
func (d *dryRunSpy) Execute(_ context.Context, _ events.Event, dryRun bool) (Result, error) {
	d.sawDryRun = dryRun
	return Result{Success: true}, nil
}
func (d *dryRunSpy) Describe() string { return "dry-run-spy" }
