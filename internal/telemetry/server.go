package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/pkg/hotreload"
)

// snapshotPushInterval is how often the WebSocket feed pushes a full
// snapshot to connected dashboard clients, per SPEC_FULL.md §6.3.
const snapshotPushInterval = 5 * time.Second

// Server is the loopback-only HTTP sidecar of SPEC_FULL.md §6.3:
// Prometheus text exposition, a JSON snapshot, a health probe, an
// inline dashboard, and a WebSocket push feed. Grounded on
// original_source/metrics/src/server.rs's route list and root HTML
// handler, re-expressed with go-chi (the teacher's router) and
// html/template instead of axum/Html.
type Server struct {
	collector *Collector
	router    chi.Router
	httpSrv   *http.Server
	upgrader  websocket.Upgrader
}

// NewServer builds a Server bound to addr (default "127.0.0.1:9090",
// never anything but loopback per §6.3). runtime, when non-nil, is
// mounted under /runtime so SPEC_FULL.md §4.6 point 6's live engine
// settings (log level, and the rate-limit/feature-flag/custom-value
// surface the teacher's RuntimeConfig carries alongside it) can be read
// and patched over the same sidecar rather than needing a second
// control surface.
func NewServer(collector *Collector, addr string, runtime *hotreload.RuntimeConfig) *Server {
	if addr == "" {
		addr = "127.0.0.1:9090"
	}
	s := &Server{
		collector: collector,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Get("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/api/snapshot", s.handleSnapshot)
	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleDashboard)
	r.Get("/ws", s.handleWebSocket)
	if runtime != nil {
		r.Mount("/runtime", http.StripPrefix("/runtime", runtime.HTTPHandler()))
	}
	s.router = r

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run starts the HTTP listener and blocks until ctx is cancelled, at
// which point it shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("telemetry: failed to encode snapshot")
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>sentineld metrics</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1000px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
		h1 { color: #333; border-bottom: 2px solid #4CAF50; padding-bottom: 10px; }
		.metric-card { background: white; border-radius: 8px; padding: 15px; margin: 10px 0; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
		.metric-value { font-size: 2em; color: #4CAF50; font-weight: bold; }
		.metric-label { color: #666; font-size: 0.9em; }
		.grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 15px; }
		.endpoint { background: #e3f2fd; padding: 10px; border-radius: 4px; font-family: monospace; margin: 5px 0; }
	</style>
</head>
<body>
	<h1>sentineld metrics</h1>
	<div class="metric-card">
		<div class="metric-label">Engine uptime</div>
		<div class="metric-value">{{printf "%.0f" .UptimeSeconds}}s</div>
	</div>
	<h2>Endpoints</h2>
	<div class="endpoint">/metrics &mdash; Prometheus text exposition</div>
	<div class="endpoint">/api/snapshot &mdash; JSON snapshot</div>
	<div class="endpoint">/health &mdash; health probe</div>
	<div class="endpoint">/ws &mdash; WebSocket push feed</div>
	<div class="endpoint">/runtime/config &mdash; live engine settings (GET/PATCH)</div>
	<h2>Quick stats</h2>
	<div class="grid">
		<div class="metric-card"><div class="metric-label">Counters</div><div class="metric-value">{{.CounterCount}}</div></div>
		<div class="metric-card"><div class="metric-label">Gauges</div><div class="metric-value">{{.GaugeCount}}</div></div>
		<div class="metric-card"><div class="metric-label">Histograms</div><div class="metric-value">{{.HistogramCount}}</div></div>
	</div>
	<p><small>Retention: 1h standard, 24h error-tagged.</small></p>
</body>
</html>`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Snapshot()
	data := struct {
		UptimeSeconds  float64
		CounterCount   int
		GaugeCount     int
		HistogramCount int
	}{
		UptimeSeconds:  snap.UptimeSeconds,
		CounterCount:   len(snap.Counters),
		GaugeCount:     len(snap.Gauges),
		HistogramCount: len(snap.Histograms),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, data); err != nil {
		log.Warn().Err(err).Msg("telemetry: failed to render dashboard")
	}
}

// handleWebSocket upgrades to a push channel delivering incremental
// Update events plus a full snapshot every 5s, per §6.3. Grounded on
// the teacher-adjacent websocket-output pack example's client-goroutine
// idiom (upgrade, subscribe, write loop until the connection or
// subscription channel closes).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := s.collector.Subscribe()
	defer s.collector.Unsubscribe(ch)

	// Drain client control frames (pings/close) on their own goroutine so
	// a slow or silent client doesn't block the write side.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	bundle := s.collector.Snapshot()
	_ = conn.WriteJSON(Update{Type: "snapshot", Timestamp: time.Now().UTC(), Snapshot: &bundle})

	// The periodic 5s snapshot push comes from the collector's own
	// snapshotLoop (one timer, fanned out to every subscriber) rather
	// than a ticker per connection here.
	for {
		select {
		case <-closed:
			return
		case u := <-ch:
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
	}
}
