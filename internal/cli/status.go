package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// runStatus dials a running daemon's control socket and prints its
// generation, running sources, and counters, per SPEC_FULL.md §7.
func runStatus(cmd *cobra.Command, _ *rootOptions) error {
	payload, err := queryControlSocket()
	if err != nil {
		return &ExitError{code: ExitFatal, message: fmt.Sprintf("sentineld does not appear to be running: %v", err)}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "generation:      %d\n", payload.Generation)
	fmt.Fprintf(out, "rules loaded:    %d\n", payload.RuleCount)
	fmt.Fprintf(out, "uptime:          %.0fs\n", payload.UptimeSeconds)
	fmt.Fprintf(out, "events total:    %d\n", payload.EventsTotal)
	fmt.Fprintf(out, "actions total:   %d\n", payload.ActionsTotal)
	fmt.Fprintf(out, "running sources: %d\n", len(payload.RunningSources))
	for _, name := range payload.RunningSources {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	return nil
}
