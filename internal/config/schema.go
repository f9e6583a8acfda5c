// Package config defines the TOML configuration schema (SPEC_FULL.md
// §6.1), its loader, validator, and snapshot diffing used by the
// supervisor to reconcile running sources and rules on reload.
package config

import "fmt"

// Config is the root configuration value, parsed with
// github.com/BurntSushi/toml.
type Config struct {
	Engine  EngineConfig   `toml:"engine"`
	Sources []SourceConfig `toml:"sources"`
	Rules   []RuleConfig   `toml:"rules"`
}

// EngineConfig holds engine-wide settings.
type EngineConfig struct {
	EventBufferSize int    `toml:"event_buffer_size"`
	LogLevel        string `toml:"log_level"`
	DryRun          bool   `toml:"dry_run"`
}

// DefaultEngineConfig returns the engine defaults named in SPEC_FULL.md §6.1.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EventBufferSize: 1000,
		LogLevel:        "info",
		DryRun:          false,
	}
}

// SourceConfig describes one configured event source. Type-specific
// fields are all present on the struct (TOML has no tagged-union
// syntax); unused fields for a given Type are ignored by the loader
// that constructs the concrete source.
type SourceConfig struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	Enabled *bool  `toml:"enabled"`

	// file_watcher
	Paths     []string `toml:"paths"`
	Pattern   string   `toml:"pattern"`
	Recursive *bool    `toml:"recursive"`

	// window_watcher
	TitlePattern   string `toml:"title_pattern"`
	ProcessPattern string `toml:"process_pattern"`

	// process_monitor
	ProcessName     string `toml:"process_name"`
	MonitorThreads  bool   `toml:"monitor_threads"`
	MonitorFiles    bool   `toml:"monitor_files"`
	MonitorNetwork  bool   `toml:"monitor_network"`

	// registry_monitor
	Root string `toml:"root"`
	Key  string `toml:"key"`

	// timer
	IntervalSeconds int `toml:"interval_seconds"`
}

// IsEnabled applies the config's documented default of true.
func (s SourceConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// IsRecursive applies the config's documented default of true for
// file_watcher sources.
func (s SourceConfig) IsRecursive() bool {
	if s.Recursive == nil {
		return true
	}
	return *s.Recursive
}

const (
	SourceTypeFileWatcher     = "file_watcher"
	SourceTypeWindowWatcher   = "window_watcher"
	SourceTypeProcessMonitor  = "process_monitor"
	SourceTypeRegistryMonitor = "registry_monitor"
	SourceTypeTimer           = "timer"
)

// RuleConfig describes one configured rule.
type RuleConfig struct {
	Name        string         `toml:"name"`
	Description string         `toml:"description"`
	Enabled     *bool          `toml:"enabled"`
	Trigger     TriggerConfig  `toml:"trigger"`
	Action      ActionConfig   `toml:"action"`
	Actions     []ActionConfig `toml:"actions"`
}

// IsEnabled applies the config's documented default of true.
func (r RuleConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// AllActions returns Action followed by Actions: the rule's single
// [rules.action] table, then its [[rules.actions]] array. Several
// actions go under [[rules.actions]]; a repeated [[rules.action]] does
// not decode, since Action holds one table.
func (r RuleConfig) AllActions() []ActionConfig {
	out := make([]ActionConfig, 0, 1+len(r.Actions))
	if r.Action.Type != "" {
		out = append(out, r.Action)
	}
	out = append(out, r.Actions...)
	return out
}

// TriggerConfig is the surface-syntax trigger record: a kind tag plus
// whichever field filters apply to it. Unused fields are the zero
// value and ignored by the compiler.
type TriggerConfig struct {
	Type string `toml:"type"`

	Pattern        string `toml:"pattern"`
	TitleContains  string `toml:"title_contains"`
	ProcessName    string `toml:"process_name"`
	Field          string `toml:"field"`
	Value          string `toml:"value"`
}

// ActionConfig is the surface-syntax action record.
type ActionConfig struct {
	Type string `toml:"type"`

	// log
	Message string `toml:"message"`
	Level   string `toml:"level"`

	// execute / powershell
	Command    string   `toml:"command"`
	Args       []string `toml:"args"`
	WorkingDir string   `toml:"working_dir"`
	Script     string   `toml:"script"`

	// http_request
	URL     string            `toml:"url"`
	Method  string            `toml:"method"`
	Headers map[string]string `toml:"headers"`
	Body    string            `toml:"body"`

	// notify
	Title string `toml:"title"`

	// media
	// Command reused from execute/powershell field above for media's
	// play|pause|toggle selector.

	// script
	Path      string `toml:"path"`
	Function  string `toml:"function"`
	TimeoutMs int    `toml:"timeout_ms"`
	OnError   string `toml:"on_error"`
}

const (
	ActionTypeLog        = "log"
	ActionTypeExecute    = "execute"
	ActionTypePowerShell = "powershell"
	ActionTypeHTTP       = "http_request"
	ActionTypeNotify     = "notify"
	ActionTypeMedia      = "media"
	ActionTypeScript     = "script"
)

const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
	OnErrorLog      = "log"
)

// ValidationError reports a configuration value that failed structural
// or semantic validation. Multiple errors may be collected before the
// snapshot is rejected.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}
