package cli

import "time"

// controlSocketPath is the named pipe a running daemon listens on and
// a --status invocation of the same binary dials, per SPEC_FULL.md
// §7's control-socket design.
const controlSocketPath = `\\.\pipe\sentineld-control`

var controlDialTimeout = 2 * time.Second

// statusPayload is the JSON exchanged over the control socket: the
// running daemon's supervisor.Status plus telemetry counters a
// --status invocation wants without scraping /metrics.
type statusPayload struct {
	Generation     int64    `json:"generation"`
	RunningSources []string `json:"running_sources"`
	RuleCount      int      `json:"rule_count"`
	EventsTotal    uint64   `json:"events_total"`
	ActionsTotal   uint64   `json:"actions_total"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
}
