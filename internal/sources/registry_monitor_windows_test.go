//go:build windows

package sources

import (
	"testing"

	"github.com/gatewatch/sentinel/internal/config"
)

func TestNewRegistryMonitorRejectsUnknownRoot(t *testing.T) {
	_, err := newRegistryMonitor(config.SourceConfig{Name: "rm", Root: "HKEY_MADE_UP", Key: `Software\Foo`})
	if err == nil {
		t.Fatal("expected error for unknown root")
	}
}

func TestNewRegistryMonitorRequiresKey(t *testing.T) {
	_, err := newRegistryMonitor(config.SourceConfig{Name: "rm", Root: "HKCU"})
	if err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestRegistryRootHandleAcceptsAliasesAndFullNames(t *testing.T) {
	for _, name := range []string{"HKCU", "HKEY_CURRENT_USER", "hklm", "HKEY_LOCAL_MACHINE"} {
		if _, ok := registryRootHandle(name); !ok {
			t.Fatalf("expected %q to resolve to a known root", name)
		}
	}
	if _, ok := registryRootHandle("not_a_root"); ok {
		t.Fatal("expected unknown root to fail")
	}
}

func TestNewRegistryMonitorAccepted(t *testing.T) {
	src, err := newRegistryMonitor(config.SourceConfig{Name: "rm", Root: "HKCU", Key: `Software\Foo`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "rm" {
		t.Fatalf("unexpected name: %q", src.Name())
	}
}
