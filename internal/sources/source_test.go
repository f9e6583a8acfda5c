package sources

import (
	"testing"

	"github.com/gatewatch/sentinel/internal/config"
)

func TestNewRejectsUnknownSourceType(t *testing.T) {
	_, err := New(config.SourceConfig{Name: "s", Type: "carrier_pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown source type")
	}
	pe, ok := err.(*PluginError)
	if !ok {
		t.Fatalf("expected *PluginError, got %T", err)
	}
	if pe.Kind != ErrConfiguration {
		t.Fatalf("expected ErrConfiguration, got %v", pe.Kind)
	}
}

func TestPluginErrorMessages(t *testing.T) {
	cases := []struct {
		kind PluginErrorKind
		want string
	}{
		{ErrConfiguration, "configuration error: x"},
		{ErrRuntime, "runtime error: x"},
		{ErrInitialization, "initialization error: x"},
	}
	for _, c := range cases {
		e := &PluginError{Kind: c.kind, Msg: "x"}
		if e.Error() != c.want {
			t.Fatalf("kind %v: got %q want %q", c.kind, e.Error(), c.want)
		}
	}
}

func TestNewFileWatcherDispatchesThroughNew(t *testing.T) {
	src, err := New(config.SourceConfig{Name: "fw", Type: config.SourceTypeFileWatcher, Paths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "fw" {
		t.Fatalf("unexpected name: %q", src.Name())
	}
}
