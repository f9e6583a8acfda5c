package config

import "testing"

func TestDiffConfigsDetectsAddedRemovedChanged(t *testing.T) {
	old := &Config{
		Sources: []SourceConfig{
			{Name: "keep", Type: SourceTypeTimer, IntervalSeconds: 1},
			{Name: "drop", Type: SourceTypeTimer, IntervalSeconds: 1},
		},
		Rules: []RuleConfig{{Name: "r1", Trigger: TriggerConfig{Type: "timer_tick"}}},
	}
	next := &Config{
		Sources: []SourceConfig{
			{Name: "keep", Type: SourceTypeTimer, IntervalSeconds: 2},
			{Name: "new", Type: SourceTypeTimer, IntervalSeconds: 1},
		},
		Rules: []RuleConfig{{Name: "r1", Trigger: TriggerConfig{Type: "file_created"}}},
	}

	d := DiffConfigs(old, next)

	if len(d.AddedSources) != 1 || d.AddedSources[0].Name != "new" {
		t.Fatalf("unexpected added sources: %+v", d.AddedSources)
	}
	if len(d.RemovedSources) != 1 || d.RemovedSources[0] != "drop" {
		t.Fatalf("unexpected removed sources: %+v", d.RemovedSources)
	}
	if len(d.ChangedSources) != 1 || d.ChangedSources[0].Name != "keep" {
		t.Fatalf("unexpected changed sources: %+v", d.ChangedSources)
	}
	if len(d.ChangedRules) != 1 || d.ChangedRules[0].Name != "r1" {
		t.Fatalf("unexpected changed rules: %+v", d.ChangedRules)
	}
}

func TestDiffConfigsEmptyWhenUnchanged(t *testing.T) {
	cfg := &Config{
		Engine:  DefaultEngineConfig(),
		Sources: []SourceConfig{{Name: "a", Type: SourceTypeTimer, IntervalSeconds: 1}},
	}
	d := DiffConfigs(cfg, cfg)
	if !d.IsEmpty() {
		t.Fatalf("expected empty diff comparing identical configs, got %+v", d)
	}
}

func TestDiffConfigsFromNilOldTreatsEverythingAsAdded(t *testing.T) {
	next := &Config{Sources: []SourceConfig{{Name: "a", Type: SourceTypeTimer, IntervalSeconds: 1}}}
	d := DiffConfigs(nil, next)
	if len(d.AddedSources) != 1 {
		t.Fatalf("expected one added source from nil baseline, got %+v", d.AddedSources)
	}
	if !d.EngineChanged {
		t.Fatal("expected EngineChanged to be true when there is no prior config")
	}
}
