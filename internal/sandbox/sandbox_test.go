package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestRunnerExecutesEntryFunction(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  return { success = true, message = event.source .. ":" .. event.kind }
end
`)
	r := NewRunner()
	out, err := r.Run(context.Background(), path, "on_event", Input{Kind: "FileCreated", Source: "fw"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success || out.Message != "fw:FileCreated" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestRunnerRejectsNonTableReturn(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  return "not a table"
end
`)
	r := NewRunner()
	if _, err := r.Run(context.Background(), path, "on_event", Input{}, time.Second); err == nil {
		t.Fatal("expected error when script returns a non-table value")
	}
}

func TestRunnerTimesOutOnInfiniteLoop(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  while true do end
end
`)
	r := NewRunner()
	_, err := r.Run(context.Background(), path, "on_event", Input{}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	sbErr, ok := err.(*Error)
	if !ok || !sbErr.Timeout {
		t.Fatalf("expected a timeout *Error, got %v (%T)", err, err)
	}
}

func TestRunnerMetadataIsVisibleToScript(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  return { success = true, message = event.metadata.owner }
end
`)
	r := NewRunner()
	out, err := r.Run(context.Background(), path, "on_event", Input{Metadata: map[string]string{"owner": "alice"}}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "alice" {
		t.Fatalf("expected metadata.owner to reach the script, got %q", out.Message)
	}
}

func TestRunnerCapabilityTablesArePresentAndDangerousGlobalsAreNot(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  local hasCaps = type(log) == "table" and type(fs) == "table" and type(json) == "table" and type(http) == "table" and type(exec) == "function"
  local hasDanger = (io ~= nil) or (require ~= nil) or (dofile ~= nil) or (load ~= nil)
  return { success = true, message = tostring(hasCaps) .. "/" .. tostring(hasDanger) }
end
`)
	r := NewRunner()
	out, err := r.Run(context.Background(), path, "on_event", Input{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "true/false" {
		t.Fatalf("expected capability tables present and dangerous globals absent, got %q", out.Message)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	path := writeScript(t, `
function on_event(event)
  local encoded = json.encode({a = 1, b = "x"})
  local decoded = json.decode(encoded)
  return { success = true, message = decoded.b }
end
`)
	r := NewRunner()
	out, err := r.Run(context.Background(), path, "on_event", Input{}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Message != "x" {
		t.Fatalf("expected json round-trip to preserve field, got %q", out.Message)
	}
}

func TestReadScriptCachesUntilMtimeChanges(t *testing.T) {
	path := writeScript(t, `function on_event(event) return {success=true, message="v1"} end`)
	r := NewRunner()

	first, err := r.readScript(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != `function on_event(event) return {success=true, message="v1"} end` {
		t.Fatalf("unexpected first read: %q", first)
	}

	// Rewrite with a distinct mtime to force a cache miss.
	future := time.Now().Add(time.Hour)
	if err := os.WriteFile(path, []byte("function on_event(event) return {success=true, message=\"v2\"} end"), 0o644); err != nil {
		t.Fatalf("rewriting script: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	second, err := r.readScript(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second == first {
		t.Fatal("expected cache to refresh after mtime change")
	}
}
