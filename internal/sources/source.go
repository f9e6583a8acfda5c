// Package sources implements the OS-signal plugins that produce
// events.Event values onto the bus: file system changes, window focus
// changes, process lifecycle, registry changes, and a plain interval
// timer.
package sources

import (
	"context"
	"fmt"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// PluginErrorKind discriminates why a source failed to start or run,
// mirroring PluginError in original_source/engine_core/src/plugin.rs.
type PluginErrorKind int

const (
	ErrInitialization PluginErrorKind = iota
	ErrRuntime
	ErrConfiguration
)

// PluginError is the error type a Source returns from Start/Stop.
type PluginError struct {
	Kind PluginErrorKind
	Msg  string
}

func (e *PluginError) Error() string {
	switch e.Kind {
	case ErrConfiguration:
		return "configuration error: " + e.Msg
	case ErrRuntime:
		return "runtime error: " + e.Msg
	default:
		return "initialization error: " + e.Msg
	}
}

func configErr(format string, args ...any) *PluginError {
	return &PluginError{Kind: ErrConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func initErr(format string, args ...any) *PluginError {
	return &PluginError{Kind: ErrInitialization, Msg: fmt.Sprintf(format, args...)}
}

// kindsToStrings renders a slice of event kinds for structured log fields.
func kindsToStrings(kinds []events.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// Source is an event source plugin, the Go equivalent of
// EventSourcePlugin in original_source/engine_core/src/plugin.rs.
// Start must return once the source is ready to emit, continuing to
// run in its own goroutine(s) until Stop or ctx is cancelled.
type Source interface {
	Name() string
	Start(ctx context.Context, emit events.Emitter) error
	Stop() error
	IsRunning() bool
}

// New constructs the concrete Source named by sc.Type. An unknown type
// is a configuration error rejected at supervisor load time, matching
// the rule/action compilers' fail-fast behaviour.
func New(sc config.SourceConfig) (Source, error) {
	switch sc.Type {
	case config.SourceTypeFileWatcher:
		return newFileWatcher(sc)
	case config.SourceTypeWindowWatcher:
		return newWindowWatcher(sc)
	case config.SourceTypeProcessMonitor:
		return newProcessMonitor(sc)
	case config.SourceTypeRegistryMonitor:
		return newRegistryMonitor(sc)
	case config.SourceTypeTimer:
		return newTimerSource(sc)
	default:
		return nil, configErr("unknown source type %q", sc.Type)
	}
}
