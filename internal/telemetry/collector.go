// Package telemetry implements the process-wide metrics collector and
// its HTTP/WebSocket sidecar (SPEC_FULL.md §4.7, §6.3). Counters,
// gauges, and histograms are backed by a real
// github.com/prometheus/client_golang registry for /metrics text
// exposition; a sliding-window sample ledger layered on top of that
// registry supports the JSON snapshot and the dashboard push feed,
// the same two-tier shape as original_source/metrics/src/lib.rs's
// MetricsCollector (atomic counters plus timestamped sample vectors,
// swept by a periodic cleanup task).
package telemetry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Retention windows per SPEC_FULL.md §4.7: standard metrics keep an
// hour of raw samples, error-tagged metrics keep a day, and a sweep
// evicts whatever has aged out every five minutes.
const (
	standardRetention = time.Hour
	errorRetention     = 24 * time.Hour
	sweepInterval      = 5 * time.Minute
)

// Update is one real-time metric event, fanned out to dashboard
// WebSocket subscribers and also appended to the sliding-window ledger.
// The Type-tagged shape mirrors original_source's MetricUpdate enum
// (EventReceived/RuleEvaluated/RuleMatched/ActionExecuted/Snapshot/Health),
// flattened into one struct since Go has no serde-style tagged union.
type Update struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Source     string `json:"source,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	RuleName   string `json:"rule_name,omitempty"`
	ActionName string `json:"action_name,omitempty"`
	Status     string `json:"status,omitempty"`

	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`

	Snapshot *MetricsBundle `json:"snapshot,omitempty"`
}

// HistogramStats summarises a histogram's samples within the retention
// window, mirroring original_source's HistogramStats.
type HistogramStats struct {
	Count uint64  `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// MetricsBundle is the JSON-serialisable snapshot returned by
// Snapshot() and served at GET /api/snapshot, mirroring
// original_source's MetricsSnapshot.
type MetricsBundle struct {
	Timestamp     time.Time                 `json:"timestamp"`
	UptimeSeconds float64                   `json:"uptime_seconds"`
	Counters      map[string]uint64         `json:"counters"`
	Gauges        map[string]float64        `json:"gauges"`
	Histograms    map[string]HistogramStats `json:"histograms"`
}

type sample struct {
	ts    time.Time
	value float64
}

// Collector is the process-wide telemetry sink. It satisfies
// actions.Metrics and supervisor.Metrics so the supervisor and
// executor can write to it without importing this package.
type Collector struct {
	reg *prometheus.Registry

	eventsTotal            *prometheus.CounterVec
	eventsDropped          *prometheus.CounterVec
	eventsProcessingDur    prometheus.Histogram
	rulesEvaluated         *prometheus.CounterVec
	rulesMatched           *prometheus.CounterVec
	actionsExecuted        *prometheus.CounterVec
	actionsExecutionDur    *prometheus.HistogramVec
	pluginsEventsGenerated *prometheus.CounterVec
	pluginsErrors          *prometheus.CounterVec
	configReloadTotal      *prometheus.CounterVec

	startedAt time.Time

	mu         sync.Mutex
	counters   map[string]uint64
	gauges     map[string]float64
	histograms map[string][]sample

	subsMu sync.Mutex
	subs   map[chan Update]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// New builds a Collector with its own Prometheus registry (so multiple
// engine instances in one process, as in tests, never collide on the
// default global registry) and starts its background sweep goroutine.
func New() *Collector {
	c := &Collector{
		reg:        prometheus.NewRegistry(),
		startedAt:  time.Now().UTC(),
		counters:   make(map[string]uint64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]sample),
		subs:       make(map[chan Update]struct{}),
		stop:       make(chan struct{}),
	}

	c.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_total", Help: "Total events received by the dispatcher.",
	}, []string{"source", "kind"})
	c.eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total", Help: "Total events dropped due to a full bus.",
	}, []string{"source"})
	c.eventsProcessingDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "events_processing_duration_seconds", Help: "Time from bus receipt to dispatch completion.",
	})
	c.rulesEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rules_evaluated_total", Help: "Total rule evaluations.",
	}, []string{"rule"})
	c.rulesMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rules_matched_total", Help: "Total successful rule matches.",
	}, []string{"rule"})
	c.actionsExecuted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actions_executed_total", Help: "Total action invocations by outcome.",
	}, []string{"action", "status"})
	c.actionsExecutionDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "actions_execution_duration_seconds", Help: "Action execution duration.",
	}, []string{"action"})
	c.pluginsEventsGenerated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plugins_events_generated_total", Help: "Total events generated by a source plugin.",
	}, []string{"plugin"})
	c.pluginsErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plugins_errors_total", Help: "Total source plugin errors.",
	}, []string{"plugin"})
	c.configReloadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "config_reload_total", Help: "Total configuration reload attempts by result.",
	}, []string{"result"})

	c.reg.MustRegister(
		c.eventsTotal, c.eventsDropped, c.eventsProcessingDur,
		c.rulesEvaluated, c.rulesMatched,
		c.actionsExecuted, c.actionsExecutionDur,
		c.pluginsEventsGenerated, c.pluginsErrors,
		c.configReloadTotal,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "engine_uptime_seconds", Help: "Seconds since the engine started.",
		}, func() float64 { return time.Since(c.startedAt).Seconds() }),
	)

	go c.sweepLoop()
	go c.snapshotLoop()
	return c
}

// Registry exposes the underlying Prometheus registry to the HTTP
// server's /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Close stops the background sweep goroutine. Idempotent.
func (c *Collector) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Collector) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

// snapshotLoop periodically fans a full snapshot out to every connected
// websocket subscriber in one place, rather than each of server.go's
// per-connection handlers running its own 5s ticker.
func (c *Collector) snapshotLoop() {
	t := time.NewTicker(snapshotPushInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.PublishSnapshot(context.Background())
		}
	}
}

// sweep evicts histogram samples older than their metric's retention
// window. Counters and gauges hold only their current totals (the
// prometheus.CounterVec/GaugeFunc is already the source of truth for
// those), so only the histogram sample ledger needs eviction.
func (c *Collector) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, samples := range c.histograms {
		cutoff := now.Add(-retentionFor(key))
		kept := samples[:0:0]
		for _, s := range samples {
			if s.ts.After(cutoff) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(c.histograms, key)
			continue
		}
		c.histograms[key] = kept
	}
}

// errorTaggedMetrics names base metric names that carry the extended
// 24h retention window regardless of label values, matching
// original_source's per-metric is_error_metric flag.
var errorTaggedMetrics = map[string]bool{
	"events_dropped_total": true,
	"plugins_errors_total": true,
}

func retentionFor(key string) time.Duration {
	name := key
	if i := strings.IndexByte(key, '{'); i >= 0 {
		name = key[:i]
	}
	if errorTaggedMetrics[name] {
		return errorRetention
	}
	if name == "actions_executed_total" && (strings.Contains(key, "status=error") ||
		strings.Contains(key, "status=failed") || strings.Contains(key, "status=timeout")) {
		return errorRetention
	}
	return standardRetention
}

func buildKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

func (c *Collector) recordCounter(name string, labels map[string]string, delta uint64) {
	key := buildKey(name, labels)
	c.mu.Lock()
	c.counters[key] += delta
	c.mu.Unlock()
}

func (c *Collector) recordHistogram(name string, labels map[string]string, value float64) {
	key := buildKey(name, labels)
	c.mu.Lock()
	c.histograms[key] = append(c.histograms[key], sample{ts: time.Now(), value: value})
	c.mu.Unlock()
}

// publish fans out an Update to every current dashboard subscriber.
// A subscriber whose channel is full drops the update rather than
// blocking the writer, matching the bus's own drop-rather-than-stall
// policy.
func (c *Collector) publish(u Update) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe registers a channel to receive live Updates. Callers
// (the WebSocket handler) must call Unsubscribe when the connection
// closes.
func (c *Collector) Subscribe() chan Update {
	ch := make(chan Update, 32)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel previously returned by
// Subscribe.
func (c *Collector) Unsubscribe(ch chan Update) {
	c.subsMu.Lock()
	delete(c.subs, ch)
	c.subsMu.Unlock()
	close(ch)
}

// --- supervisor.Metrics / actions.Metrics implementation ---

// EventReceived records events_total{source,kind} and, since a source
// name doubles as its plugin instance name in this design,
// plugins_events_generated_total{plugin} from the same call site.
func (c *Collector) EventReceived(source, kind string) {
	c.eventsTotal.WithLabelValues(source, kind).Inc()
	c.pluginsEventsGenerated.WithLabelValues(source).Inc()
	c.recordCounter("events_total", map[string]string{"source": source, "kind": kind}, 1)
	c.recordCounter("plugins_events_generated_total", map[string]string{"plugin": source}, 1)
	c.publish(Update{Type: "event_received", Timestamp: time.Now().UTC(), Source: source, EventType: kind})
}

// EventDropped records events_dropped_total{source}.
func (c *Collector) EventDropped(source string) {
	c.eventsDropped.WithLabelValues(source).Inc()
	c.recordCounter("events_dropped_total", map[string]string{"source": source}, 1)
}

// EventProcessingDuration records events_processing_duration_seconds,
// the dispatcher's per-event bus-receipt-to-dispatch-complete latency.
func (c *Collector) EventProcessingDuration(d time.Duration) {
	c.eventsProcessingDur.Observe(d.Seconds())
	c.recordHistogram("events_processing_duration_seconds", nil, d.Seconds())
}

// RuleEvaluated records rules_evaluated_total{rule}.
func (c *Collector) RuleEvaluated(rule string) {
	c.rulesEvaluated.WithLabelValues(rule).Inc()
	c.recordCounter("rules_evaluated_total", map[string]string{"rule": rule}, 1)
	c.publish(Update{Type: "rule_evaluated", Timestamp: time.Now().UTC(), RuleName: rule})
}

// RuleMatched records rules_matched_total{rule}.
func (c *Collector) RuleMatched(rule string) {
	c.rulesMatched.WithLabelValues(rule).Inc()
	c.recordCounter("rules_matched_total", map[string]string{"rule": rule}, 1)
	c.publish(Update{Type: "rule_matched", Timestamp: time.Now().UTC(), RuleName: rule})
}

// ActionExecuted records actions_executed_total{action,status} and
// actions_execution_duration_seconds{action}.
func (c *Collector) ActionExecuted(action, status string, d time.Duration) {
	c.actionsExecuted.WithLabelValues(action, status).Inc()
	c.actionsExecutionDur.WithLabelValues(action).Observe(d.Seconds())
	c.recordCounter("actions_executed_total", map[string]string{"action": action, "status": status}, 1)
	c.recordHistogram("actions_execution_duration_seconds", map[string]string{"action": action}, d.Seconds())
	c.publish(Update{Type: "action_executed", Timestamp: time.Now().UTC(), ActionName: action, Status: status})
}

// ActionDropped records one actions_executed_total{action,status=dropped}
// when the executor's worker pool overflows.
func (c *Collector) ActionDropped(action string) {
	c.actionsExecuted.WithLabelValues(action, "dropped").Inc()
	c.recordCounter("actions_executed_total", map[string]string{"action": action, "status": "dropped"}, 1)
}

// PluginError records plugins_errors_total{plugin}.
func (c *Collector) PluginError(plugin string) {
	c.pluginsErrors.WithLabelValues(plugin).Inc()
	c.recordCounter("plugins_errors_total", map[string]string{"plugin": plugin}, 1)
}

// ConfigReload records config_reload_total{result} and broadcasts a
// health update, matching original_source's broadcast-on-reload
// behaviour.
func (c *Collector) ConfigReload(result string) {
	c.configReloadTotal.WithLabelValues(result).Inc()
	c.recordCounter("config_reload_total", map[string]string{"result": result}, 1)
	c.publish(Update{Type: "health", Timestamp: time.Now().UTC(), UptimeSeconds: time.Since(c.startedAt).Seconds()})
}

// Snapshot returns a JSON-serialisable view of every metric's current
// value (counters/gauges are lifetime totals; histograms are
// summarised over their retention window), served at GET /api/snapshot
// and pushed to WebSocket subscribers every 5s.
func (c *Collector) Snapshot() MetricsBundle {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		counters[k] = v
	}

	gauges := make(map[string]float64, len(c.gauges)+1)
	for k, v := range c.gauges {
		gauges[k] = v
	}
	gauges["engine_uptime_seconds"] = time.Since(c.startedAt).Seconds()

	histograms := make(map[string]HistogramStats, len(c.histograms))
	for key, samples := range c.histograms {
		cutoff := now.Add(-retentionFor(key))
		var count uint64
		var sum, min, max float64
		first := true
		for _, s := range samples {
			if s.ts.Before(cutoff) {
				continue
			}
			count++
			sum += s.value
			if first || s.value < min {
				min = s.value
			}
			if first || s.value > max {
				max = s.value
			}
			first = false
		}
		if count == 0 {
			continue
		}
		histograms[key] = HistogramStats{Count: count, Sum: sum, Avg: sum / float64(count), Min: min, Max: max}
	}

	return MetricsBundle{
		Timestamp:     now.UTC(),
		UptimeSeconds: time.Since(c.startedAt).Seconds(),
		Counters:      counters,
		Gauges:        gauges,
		Histograms:    histograms,
	}
}

// PublishSnapshot fans a full snapshot out to every subscriber.
// snapshotLoop calls this every five seconds; context is accepted for
// symmetry with other periodic operations and is not currently
// consulted.
func (c *Collector) PublishSnapshot(_ context.Context) {
	bundle := c.Snapshot()
	c.publish(Update{Type: "snapshot", Timestamp: time.Now().UTC(), Snapshot: &bundle})
}
