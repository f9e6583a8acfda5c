package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountersAccumulate(t *testing.T) {
	c := New()
	defer c.Close()

	c.EventReceived("fw", "FileCreated")
	c.EventReceived("fw", "FileCreated")
	c.EventReceived("fw", "FileModified")

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Counters["events_total{kind=FileCreated,source=fw}"])
	assert.Equal(t, uint64(1), snap.Counters["events_total{kind=FileModified,source=fw}"])
	assert.Equal(t, uint64(3), snap.Counters["plugins_events_generated_total{plugin=fw}"])
}

func TestCollectorActionExecutedRecordsDurationAndStatus(t *testing.T) {
	c := New()
	defer c.Close()

	c.ActionExecuted("log", "success", 10*time.Millisecond)
	c.ActionExecuted("log", "success", 20*time.Millisecond)
	c.ActionExecuted("log", "error", 5*time.Millisecond)

	snap := c.Snapshot()
	assert.Equal(t, uint64(2), snap.Counters["actions_executed_total{action=log,status=success}"])
	assert.Equal(t, uint64(1), snap.Counters["actions_executed_total{action=log,status=error}"])

	stats, ok := snap.Histograms["actions_execution_duration_seconds{action=log}"]
	require.True(t, ok)
	assert.Equal(t, uint64(3), stats.Count)
	assert.InDelta(t, 0.005, stats.Min, 1e-6)
	assert.InDelta(t, 0.02, stats.Max, 1e-6)
}

func TestCollectorUptimeGaugeAdvances(t *testing.T) {
	c := New()
	defer c.Close()

	first := c.Snapshot().UptimeSeconds
	time.Sleep(5 * time.Millisecond)
	second := c.Snapshot().UptimeSeconds
	assert.Greater(t, second, first)
}

func TestCollectorSubscribePublishesUpdates(t *testing.T) {
	c := New()
	defer c.Close()

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	c.RuleMatched("r1")

	select {
	case u := <-ch:
		assert.Equal(t, "rule_matched", u.Type)
		assert.Equal(t, "r1", u.RuleName)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published update")
	}
}

func TestRetentionForErrorTaggedMetrics(t *testing.T) {
	assert.Equal(t, errorRetention, retentionFor("events_dropped_total"))
	assert.Equal(t, errorRetention, retentionFor("plugins_errors_total{plugin=fw}"))
	assert.Equal(t, errorRetention, retentionFor("actions_executed_total{action=log,status=error}"))
	assert.Equal(t, standardRetention, retentionFor("actions_executed_total{action=log,status=success}"))
	assert.Equal(t, standardRetention, retentionFor("events_total{kind=FileCreated,source=fw}"))
}

func TestSweepEvictsExpiredHistogramSamples(t *testing.T) {
	c := New()
	defer c.Close()

	c.recordHistogram("events_processing_duration_seconds", nil, 1.0)
	key := buildKey("events_processing_duration_seconds", nil)

	c.mu.Lock()
	c.histograms[key][0].ts = time.Now().Add(-2 * standardRetention)
	c.mu.Unlock()

	c.sweep()

	c.mu.Lock()
	_, ok := c.histograms[key]
	c.mu.Unlock()
	assert.False(t, ok)
}

func TestBuildKeySortsLabels(t *testing.T) {
	a := buildKey("x", map[string]string{"b": "2", "a": "1"})
	b := buildKey("x", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "x{a=1,b=2}", a)
}
