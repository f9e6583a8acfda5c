package rules

import (
	"fmt"
	"strings"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// triggerKindFields maps the lowercased trigger "type" tag to the Kind
// it lowers to, mirroring SPEC_FULL.md §4.3's canonical form: an And of
// (KindEquals, zero or more field matchers).
var triggerKindFields = map[string]events.Kind{
	"file_created":  events.KindFileCreated,
	"file_modified": events.KindFileModified,
	"file_deleted":  events.KindFileDeleted,
	"file_renamed":  events.KindFileRenamed,

	"window_created":       events.KindWindowCreated,
	"window_destroyed":     events.KindWindowDestroyed,
	"window_focused":       events.KindWindowFocused,
	"window_unfocused":     events.KindWindowUnfocused,
	"window_title_changed": events.KindWindowTitleChanged,

	"process_started": events.KindProcessStarted,
	"process_stopped":  events.KindProcessStopped,
	"thread_created":   events.KindThreadCreated,
	"thread_destroyed": events.KindThreadDestroyed,

	"file_accessed":               events.KindFileAccessed,
	"file_io_read":                events.KindFileIoRead,
	"file_io_write":               events.KindFileIoWrite,
	"file_io_delete":              events.KindFileIoDelete,
	"network_connection_created":  events.KindNetworkConnectionCreated,
	"network_connection_closed":   events.KindNetworkConnectionClosed,

	"registry_key_created":   events.KindRegistryKeyCreated,
	"registry_key_deleted":   events.KindRegistryKeyDeleted,
	"registry_value_set":     events.KindRegistryValueSet,
	"registry_value_deleted": events.KindRegistryValueDeleted,

	"timer_tick": events.KindTimerTick,
}

// CompileTrigger lowers a surface-syntax trigger record to a matcher
// tree. Compilation fails on a bad glob pattern or an unknown trigger
// type, so the whole rule is rejected at load rather than silently
// never matching.
func CompileTrigger(t config.TriggerConfig) (Matcher, error) {
	kind, ok := triggerKindFields[strings.ToLower(t.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown trigger type %q", t.Type)
	}

	children := []Matcher{KindEquals{Kind: kind}}

	if t.Pattern != "" {
		field := patternFieldFor(kind)
		g, err := CompileGlobOn(field, t.Pattern)
		if err != nil {
			return nil, err
		}
		children = append(children, g)
	}

	if t.TitleContains != "" {
		children = append(children, SubstringOn{Field: "title", Needle: t.TitleContains})
	}

	if t.ProcessName != "" {
		children = append(children, FieldEquals{Field: "process_name", Value: t.ProcessName})
	}

	if t.Field != "" {
		children = append(children, FieldEquals{Field: t.Field, Value: t.Value})
	}

	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

// patternFieldFor chooses which metadata field a bare "pattern" filter
// applies to. Every kind currently maps to "path".
func patternFieldFor(kind events.Kind) string {
	switch kind {
	case events.KindFileCreated, events.KindFileModified, events.KindFileDeleted, events.KindFileRenamed:
		return "path"
	default:
		return "path"
	}
}
