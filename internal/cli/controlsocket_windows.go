//go:build windows

package cli

import (
	"context"
	"encoding/json"
	"net"

	winio "github.com/Microsoft/go-winio"
	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/supervisor"
	"github.com/gatewatch/sentinel/internal/telemetry"
)

// pipeSecuritySDDL grants the control socket to Local System, Built-in
// Administrators, and the pipe's creator, the same triad as the
// teacher's internal/platform/windows.PipeSecuritySDDL.
const pipeSecuritySDDL = "D:(A;;GA;;;SY)(A;;GA;;;BA)(A;;GA;;;CO)"

// serveControlSocket listens on the control named pipe until ctx is
// cancelled, answering every connection with the current statusPayload
// and closing it. One-shot request/response, no framing needed.
func serveControlSocket(ctx context.Context, sup *supervisor.Supervisor, collector *telemetry.Collector) error {
	ln, err := winio.ListenPipe(controlSocketPath, &winio.PipeConfig{
		SecurityDescriptor: pipeSecuritySDDL,
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warn().Err(err).Msg("control socket: accept failed")
				return err
			}
		}
		go handleControlConn(conn, sup, collector)
	}
}

func handleControlConn(conn net.Conn, sup *supervisor.Supervisor, collector *telemetry.Collector) {
	defer conn.Close()

	st := sup.Status()
	payload := statusPayload{
		Generation:     st.Generation,
		RunningSources: st.RunningSources,
		RuleCount:      st.RuleCount,
	}
	if collector != nil {
		snap := collector.Snapshot()
		payload.UptimeSeconds = snap.UptimeSeconds
		for key, v := range snap.Counters {
			switch {
			case len(key) >= len("events_total") && key[:len("events_total")] == "events_total":
				payload.EventsTotal += v
			case len(key) >= len("actions_executed_total") && key[:len("actions_executed_total")] == "actions_executed_total":
				payload.ActionsTotal += v
			}
		}
	}

	if err := json.NewEncoder(conn).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("control socket: failed to write status response")
	}
}

// queryControlSocket dials the control pipe of an already-running
// daemon and decodes its status response.
func queryControlSocket() (*statusPayload, error) {
	conn, err := winio.DialPipe(controlSocketPath, &controlDialTimeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var payload statusPayload
	if err := json.NewDecoder(conn).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
