package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentineld.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSupervisor_StatusBeforeRun(t *testing.T) {
	sup := New(Options{ConfigPath: "unused.toml"})
	st := sup.Status()
	if st.Generation != 0 {
		t.Errorf("Generation = %d, want 0 before Run", st.Generation)
	}
	if len(st.RunningSources) != 0 {
		t.Errorf("RunningSources = %v, want empty before Run", st.RunningSources)
	}
}

func TestSupervisor_RunStartsSourceAndLoadsRule(t *testing.T) {
	path := writeConfig(t, `
[engine]
event_buffer_size = 10

[[sources]]
name = "clock"
type = "timer"
interval_seconds = 1

[[rules]]
name = "log-tick"

[rules.trigger]
type = "timer_tick"

[rules.action]
type = "log"
message = "tick"
level = "info"
`)

	events := &stubMetrics{}
	sup := New(Options{ConfigPath: path, NoWatch: true, Metrics: events, ShutdownGrace: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	// Give the source time to start before inspecting status.
	time.Sleep(20 * time.Millisecond)
	st := sup.Status()
	if st.RuleCount != 1 {
		t.Errorf("RuleCount = %d, want 1", st.RuleCount)
	}
	found := false
	for _, name := range st.RunningSources {
		if name == "clock" {
			found = true
		}
	}
	if !found {
		t.Errorf("RunningSources = %v, want it to contain %q", st.RunningSources, "clock")
	}

	if err := <-done; err != nil {
		t.Fatalf("Run returned an error: %v", err)
	}
}

func TestSupervisor_RunRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
[[rules]]
name = "no-actions"

[rules.trigger]
type = "timer_tick"
`)

	sup := New(Options{ConfigPath: path, NoWatch: true})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sup.Run(ctx); err == nil {
		t.Fatal("expected Run to reject a rule with no actions")
	}
}

type stubMetrics struct{}

func (stubMetrics) ActionExecuted(string, string, time.Duration) {}
func (stubMetrics) ActionDropped(string)                         {}
func (stubMetrics) EventReceived(string, string)                 {}
func (stubMetrics) EventDropped(string)                          {}
func (stubMetrics) EventProcessingDuration(time.Duration)        {}
func (stubMetrics) RuleEvaluated(string)                         {}
func (stubMetrics) RuleMatched(string)                           {}
func (stubMetrics) PluginError(string)                            {}
func (stubMetrics) ConfigReload(string)                          {}
