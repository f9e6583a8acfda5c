//go:build windows

package cli

import "golang.org/x/sys/windows"

// isElevated reports whether the current process token carries
// administrator privilege, the gate SPEC_FULL.md §6.2 puts in front of
// --install/--uninstall/--run-service.
func isElevated() bool {
	token := windows.GetCurrentProcessToken()
	return token.IsElevated()
}
