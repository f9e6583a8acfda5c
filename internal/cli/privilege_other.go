//go:build !windows

package cli

// isElevated always reports false off Windows: service install,
// uninstall, and SCM-managed running are Win32-only operations, so
// there is never a privilege to hold here.
func isElevated() bool { return false }
