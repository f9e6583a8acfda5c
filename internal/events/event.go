// Package events defines the event value type and the bounded bus that
// carries events from source plugins to the dispatcher.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the closed set of event kinds the engine understands.
type Kind string

const (
	KindFileCreated Kind = "FileCreated"
	KindFileModified Kind = "FileModified"
	KindFileDeleted Kind = "FileDeleted"
	KindFileRenamed Kind = "FileRenamed"

	KindWindowCreated      Kind = "WindowCreated"
	KindWindowDestroyed    Kind = "WindowDestroyed"
	KindWindowFocused      Kind = "WindowFocused"
	KindWindowUnfocused    Kind = "WindowUnfocused"
	KindWindowTitleChanged Kind = "WindowTitleChanged"

	KindProcessStarted           Kind = "ProcessStarted"
	KindProcessStopped           Kind = "ProcessStopped"
	KindThreadCreated            Kind = "ThreadCreated"
	KindThreadDestroyed          Kind = "ThreadDestroyed"
	KindFileAccessed             Kind = "FileAccessed"
	KindFileIoRead               Kind = "FileIoRead"
	KindFileIoWrite              Kind = "FileIoWrite"
	KindFileIoDelete             Kind = "FileIoDelete"
	KindNetworkConnectionCreated Kind = "NetworkConnectionCreated"
	KindNetworkConnectionClosed  Kind = "NetworkConnectionClosed"

	KindRegistryKeyCreated    Kind = "RegistryKeyCreated"
	KindRegistryKeyDeleted    Kind = "RegistryKeyDeleted"
	KindRegistryValueSet      Kind = "RegistryValueSet"
	KindRegistryValueDeleted  Kind = "RegistryValueDeleted"

	KindTimerTick Kind = "TimerTick"
)

// AllKinds returns every kind in the closed set, in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindFileCreated, KindFileModified, KindFileDeleted, KindFileRenamed,
		KindWindowCreated, KindWindowDestroyed, KindWindowFocused, KindWindowUnfocused, KindWindowTitleChanged,
		KindProcessStarted, KindProcessStopped, KindThreadCreated, KindThreadDestroyed,
		KindFileAccessed, KindFileIoRead, KindFileIoWrite, KindFileIoDelete,
		KindNetworkConnectionCreated, KindNetworkConnectionClosed,
		KindRegistryKeyCreated, KindRegistryKeyDeleted, KindRegistryValueSet, KindRegistryValueDeleted,
		KindTimerTick,
	}
}

// kernelTraceOnlyKinds names kinds that this build's poll-mode process
// monitor never emits. The process monitor's Start names them in the
// PluginError it returns when a config asks for them.
func kernelTraceOnlyKinds() []Kind {
	return []Kind{
		KindThreadCreated, KindThreadDestroyed,
		KindFileIoRead, KindFileIoWrite, KindFileIoDelete,
		KindNetworkConnectionCreated, KindNetworkConnectionClosed,
	}
}

// KernelTraceOnlyKinds exposes kernelTraceOnlyKinds to other packages.
func KernelTraceOnlyKinds() []Kind { return kernelTraceOnlyKinds() }

// Event is an immutable value describing a single OS-level or internal
// signal. Events are produced exactly once by a source and consumed at
// most once by the dispatcher; Clone is used to hand independent copies
// to each matching rule.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Kind      Kind
	Source    string
	Metadata  map[string]string
}

// New constructs an Event with a fresh id and the current UTC timestamp.
func New(kind Kind, source string) Event {
	return Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Source:    source,
		Metadata:  make(map[string]string),
	}
}

// WithMetadata returns a copy of e with key=value added to its metadata.
func (e Event) WithMetadata(key, value string) Event {
	e.Metadata = cloneMeta(e.Metadata)
	e.Metadata[key] = value
	return e
}

// Clone returns an independent copy of e, including a copy of its
// metadata map, so that one rule's action cannot observe mutations made
// while evaluating another rule against the same event.
func (e Event) Clone() Event {
	e.Metadata = cloneMeta(e.Metadata)
	return e
}

// Field looks up a metadata key. Absence is reported via ok=false so
// matchers can treat missing fields as non-match rather than panicking.
func (e Event) Field(key string) (string, bool) {
	v, ok := e.Metadata[key]
	return v, ok
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
