package rules

import (
	"testing"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

func logRule(name string, enabled bool, triggerType string) config.RuleConfig {
	e := enabled
	return config.RuleConfig{
		Name:    name,
		Enabled: &e,
		Trigger: config.TriggerConfig{Type: triggerType},
		Action:  config.ActionConfig{Type: config.ActionTypeLog, Message: "hello"},
	}
}

func TestCompileRejectsDuplicateNames(t *testing.T) {
	table, errs := Compile([]config.RuleConfig{
		logRule("dup", true, "timer_tick"),
		logRule("dup", true, "timer_tick"),
	})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one duplicate-name error, got %v", errs)
	}
	if len(table.Rules) != 1 {
		t.Fatalf("expected only the first rule compiled, got %d rules", len(table.Rules))
	}
}

func TestCompileRejectsRuleWithNoActions(t *testing.T) {
	rc := config.RuleConfig{Name: "no-actions", Trigger: config.TriggerConfig{Type: "timer_tick"}}
	_, errs := Compile([]config.RuleConfig{rc})
	if len(errs) != 1 {
		t.Fatalf("expected one error for a rule with no actions, got %v", errs)
	}
}

func TestCompileSkipsBadRuleButKeepsOthers(t *testing.T) {
	bad := logRule("bad", true, "not_a_real_type")
	good := logRule("good", true, "timer_tick")

	table, errs := Compile([]config.RuleConfig{bad, good})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one compile error, got %v", errs)
	}
	if len(table.Rules) != 1 || table.Rules[0].Name != "good" {
		t.Fatalf("expected only 'good' to compile, got %+v", table.Rules)
	}
}

func TestEvaluateSkipsDisabledRulesAndOrdersActions(t *testing.T) {
	table, errs := Compile([]config.RuleConfig{
		logRule("disabled", false, "timer_tick"),
		logRule("enabled", true, "timer_tick"),
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}

	ev := events.New(events.KindTimerTick, "timer")
	invocations := table.Evaluate(ev)
	if len(invocations) != 1 {
		t.Fatalf("expected exactly one invocation from the enabled rule, got %d", len(invocations))
	}
	if invocations[0].Rule.Name != "enabled" {
		t.Fatalf("expected invocation from 'enabled' rule, got %q", invocations[0].Rule.Name)
	}
}

func TestCompileDefaultsOnErrorToFail(t *testing.T) {
	table, errs := Compile([]config.RuleConfig{logRule("r", true, "timer_tick")})
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	invocations := table.Evaluate(events.New(events.KindTimerTick, "timer"))
	if len(invocations) != 1 || invocations[0].OnError != config.OnErrorFail {
		t.Fatalf("expected default on_error=fail, got %+v", invocations)
	}
}

func TestCompilePreservesExplicitOnError(t *testing.T) {
	rc := logRule("r", true, "timer_tick")
	rc.Action.OnError = config.OnErrorContinue
	table, errs := Compile([]config.RuleConfig{rc})
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	invocations := table.Evaluate(events.New(events.KindTimerTick, "timer"))
	if len(invocations) != 1 || invocations[0].OnError != config.OnErrorContinue {
		t.Fatalf("expected preserved on_error=continue, got %+v", invocations)
	}
}

func TestEvaluateOnNilTableIsSafe(t *testing.T) {
	var table *RuleTable
	if out := table.Evaluate(events.New(events.KindTimerTick, "timer")); out != nil {
		t.Fatalf("expected nil result from nil table, got %v", out)
	}
}
