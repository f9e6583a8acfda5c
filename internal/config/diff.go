package config

import "reflect"

// Diff is the result of comparing two Config snapshots: which named
// sources and rules were added, removed, or changed in place. The
// Config Supervisor (SPEC_FULL.md §4.6) uses this to start/stop only
// the sources that actually changed rather than restarting everything
// on every reload.
type Diff struct {
	AddedSources   []SourceConfig
	RemovedSources []string
	ChangedSources []SourceConfig

	AddedRules   []RuleConfig
	RemovedRules []string
	ChangedRules []RuleConfig

	EngineChanged bool
}

// IsEmpty reports whether the diff represents no observable change.
func (d Diff) IsEmpty() bool {
	return len(d.AddedSources) == 0 && len(d.RemovedSources) == 0 && len(d.ChangedSources) == 0 &&
		len(d.AddedRules) == 0 && len(d.RemovedRules) == 0 && len(d.ChangedRules) == 0 &&
		!d.EngineChanged
}

// DiffConfigs compares old and next by name, reporting additions,
// removals, and in-place changes for both sources and rules.
func DiffConfigs(old, next *Config) Diff {
	var d Diff

	oldSources := bySourceName(old)
	nextSources := bySourceName(next)
	for name, s := range nextSources {
		if prev, ok := oldSources[name]; !ok {
			d.AddedSources = append(d.AddedSources, s)
		} else if !reflect.DeepEqual(prev, s) {
			d.ChangedSources = append(d.ChangedSources, s)
		}
	}
	for name := range oldSources {
		if _, ok := nextSources[name]; !ok {
			d.RemovedSources = append(d.RemovedSources, name)
		}
	}

	oldRules := byRuleName(old)
	nextRules := byRuleName(next)
	for name, r := range nextRules {
		if prev, ok := oldRules[name]; !ok {
			d.AddedRules = append(d.AddedRules, r)
		} else if !reflect.DeepEqual(prev, r) {
			d.ChangedRules = append(d.ChangedRules, r)
		}
	}
	for name := range oldRules {
		if _, ok := nextRules[name]; !ok {
			d.RemovedRules = append(d.RemovedRules, name)
		}
	}

	d.EngineChanged = old == nil || !reflect.DeepEqual(old.Engine, next.Engine)

	return d
}

func bySourceName(cfg *Config) map[string]SourceConfig {
	m := make(map[string]SourceConfig)
	if cfg == nil {
		return m
	}
	for _, s := range cfg.Sources {
		m[s.Name] = s
	}
	return m
}

func byRuleName(cfg *Config) map[string]RuleConfig {
	m := make(map[string]RuleConfig)
	if cfg == nil {
		return m
	}
	for _, r := range cfg.Rules {
		m[r.Name] = r
	}
	return m
}
