package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
[engine]
event_buffer_size = 500
log_level = "debug"

[[sources]]
name = "fw"
type = "file_watcher"
paths = ["C:/watched"]

[[rules]]
name = "r1"
[rules.trigger]
type = "file_created"
[rules.action]
type = "log"
message = "changed"
`

func TestLoadParsesEngineSourcesRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.EventBufferSize != 500 || cfg.Engine.LogLevel != "debug" {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if len(cfg.Sources) != 1 || cfg.Sources[0].Name != "fw" {
		t.Fatalf("unexpected sources: %+v", cfg.Sources)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].Action.Message != "changed" {
		t.Fatalf("unexpected rules: %+v", cfg.Rules)
	}
}

func TestLoadDirMergesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	write("00-engine.toml", `
[engine]
event_buffer_size = 10
log_level = "info"
`)
	write("10-sources.toml", `
[[sources]]
name = "fw"
type = "file_watcher"
paths = ["C:/watched"]
`)
	write("20-rules.toml", `
[[rules]]
name = "r1"
[rules.trigger]
type = "timer_tick"
[rules.action]
type = "log"
message = "tick"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Sources) != 1 || len(cfg.Rules) != 1 {
		t.Fatalf("expected merged sources/rules, got %+v", cfg)
	}
	if cfg.Engine.EventBufferSize != 1000 {
		// The last file in sorted order (20-rules.toml) carries no
		// [engine] table, so its zero-valued decode target keeps
		// whatever DefaultEngineConfig() filled in for that file.
		t.Fatalf("expected the last file's engine defaults to apply, got %+v", cfg.Engine)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error for malformed TOML")
	}
}
