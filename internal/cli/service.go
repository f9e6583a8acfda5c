package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Native Windows Service Control Manager integration is explicitly out
// of scope (SPEC_FULL.md §1): --install and --uninstall print guidance
// and require administrator privilege before doing anything at all,
// and --run-service degrades to the foreground engine loop rather than
// registering a real service control handler.

func runInstall(cmd *cobra.Command, o *rootOptions) error {
	if !isElevated() {
		return errNotElevated("--install")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sentineld --install does not register a Windows service in this build.")
	fmt.Fprintln(cmd.OutOrStdout(), "Run sentineld --run-service under a Service Control Manager wrapper of your own,")
	fmt.Fprintln(cmd.OutOrStdout(), "or run it directly with --config/--config-dir for the foreground engine loop.")
	return nil
}

func runUninstall(cmd *cobra.Command, o *rootOptions) error {
	if !isElevated() {
		return errNotElevated("--uninstall")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sentineld --uninstall has nothing to remove: no service was registered by this build.")
	return nil
}

func runService(cmd *cobra.Command, o *rootOptions) error {
	if !isElevated() {
		return errNotElevated("--run-service")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sentineld --run-service: no Service Control Handler in this build, degrading to the foreground engine loop.")
	return runEngine(cmd, o)
}

func errNotElevated(flag string) error {
	return &ExitError{code: ExitPrivilegeRequired, message: fmt.Sprintf("%s requires administrator privilege", flag)}
}
