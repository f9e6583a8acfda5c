//go:build !windows

package cli

import (
	"context"
	"errors"

	"github.com/gatewatch/sentinel/internal/supervisor"
	"github.com/gatewatch/sentinel/internal/telemetry"
)

var errControlSocketUnsupported = errors.New("control socket is only supported on windows")

// serveControlSocket is a no-op off Windows: named pipes don't exist
// here, so there is nothing to listen on. It blocks until ctx is
// cancelled so callers can still select on it like the real listener.
func serveControlSocket(ctx context.Context, _ *supervisor.Supervisor, _ *telemetry.Collector) error {
	<-ctx.Done()
	return nil
}

func queryControlSocket() (*statusPayload, error) {
	return nil, errControlSocketUnsupported
}
