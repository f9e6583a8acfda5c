package rules

import (
	"fmt"

	"github.com/gatewatch/sentinel/internal/actions"
	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// Rule is a pure compiled value: a name, an optional description, a
// compiled trigger, and one or more actions. Rules have no runtime
// state other than accumulated match counts, which live in telemetry,
// not on the Rule itself.
type Rule struct {
	Name        string
	Description string
	Enabled     bool
	Trigger     Matcher
	Actions     []RuleAction
}

// RuleAction pairs a compiled action with the on_error policy that
// governs it. The policy decides what happens to the rest of the
// rule's action list if this action fails: fail (default) aborts the
// remaining actions, continue records the failure and proceeds, log
// only warns and proceeds.
type RuleAction struct {
	Action  actions.Action
	OnError string
}

// Invocation is one (rule, action) pair the engine yields for a
// matched event, in the order the executor must schedule it.
// Invocations for the same rule are always consecutive and share Rule,
// letting the executor group them into one sequential unit.
type Invocation struct {
	Rule    *Rule
	Action  actions.Action
	OnError string
}

// RuleTable is the immutable, compiled rule set the dispatcher
// evaluates each event against. It is published through
// pkg/hotreload.Reloadable[RuleTable] so the supervisor can swap it in
// without the dispatcher ever observing a torn table.
type RuleTable struct {
	Rules []*Rule
}

// Compile builds a RuleTable from config, compiling every rule's
// trigger and actions. A rule that fails to compile is reported and
// excluded; the remainder of the configuration still loads, per
// SPEC_FULL.md §4.3.
func Compile(cfgs []config.RuleConfig) (*RuleTable, []error) {
	var errs []error
	seen := make(map[string]bool)
	table := &RuleTable{}

	for _, rc := range cfgs {
		if seen[rc.Name] {
			errs = append(errs, fmt.Errorf("rule %q: duplicate name", rc.Name))
			continue
		}
		seen[rc.Name] = true

		trigger, err := CompileTrigger(rc.Trigger)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q: %w", rc.Name, err))
			continue
		}

		actionCfgs := rc.AllActions()
		if len(actionCfgs) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: no actions declared", rc.Name))
			continue
		}

		compiledActions := make([]RuleAction, 0, len(actionCfgs))
		var actionErr error
		for i, ac := range actionCfgs {
			a, err := actions.Compile(ac)
			if err != nil {
				actionErr = fmt.Errorf("rule %q: action %d: %w", rc.Name, i, err)
				break
			}
			onError := ac.OnError
			if onError == "" {
				onError = config.OnErrorFail
			}
			compiledActions = append(compiledActions, RuleAction{Action: a, OnError: onError})
		}
		if actionErr != nil {
			errs = append(errs, actionErr)
			continue
		}

		table.Rules = append(table.Rules, &Rule{
			Name:        rc.Name,
			Description: rc.Description,
			Enabled:     rc.IsEnabled(),
			Trigger:     trigger,
			Actions:     compiledActions,
		})
	}

	return table, errs
}

// Evaluate matches ev against every enabled rule in configuration
// order and returns the ordered (rule, action) invocations. Evaluation
// is a pure function of (ev, table): repeated calls yield identical
// results.
func (t *RuleTable) Evaluate(ev events.Event) []Invocation {
	if t == nil {
		return nil
	}
	var out []Invocation
	for _, r := range t.Rules {
		if !r.Enabled {
			continue
		}
		if !r.Trigger.Match(ev) {
			continue
		}
		for _, a := range r.Actions {
			out = append(out, Invocation{Rule: r, Action: a.Action, OnError: a.OnError})
		}
	}
	return out
}
