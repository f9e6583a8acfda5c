//go:build !windows

package sources

import "github.com/gatewatch/sentinel/internal/config"

// Window focus tracking, process lifecycle polling and registry change
// notification are all Win32-only signals; on other platforms the
// corresponding source type is a configuration error rather than a
// silently-inert plugin, so misconfiguration is caught at load time.

func newWindowWatcher(sc config.SourceConfig) (Source, error) {
	return nil, configErr("window_watcher %q is only supported on windows", sc.Name)
}

func newProcessMonitor(sc config.SourceConfig) (Source, error) {
	return nil, configErr("process_monitor %q is only supported on windows", sc.Name)
}

func newRegistryMonitor(sc config.SourceConfig) (Source, error) {
	return nil, configErr("registry_monitor %q is only supported on windows", sc.Name)
}
