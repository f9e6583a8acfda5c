package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAndValidate_RequiresConfigOrDir(t *testing.T) {
	_, err := loadAndValidate(&rootOptions{})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code() != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
}

func TestLoadAndValidate_RejectsBothConfigAndDir(t *testing.T) {
	_, err := loadAndValidate(&rootOptions{configPath: "a.toml", configDir: "b"})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code() != 2 {
		t.Fatalf("expected exit code 2, got %v", err)
	}
}

func TestLoadAndValidate_AcceptsMinimalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentineld.toml")
	if err := os.WriteFile(path, []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadAndValidate(&rootOptions{configPath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected a non-nil config")
	}
}

func TestLoadAndValidate_RejectsInvalidRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentineld.toml")
	body := `
[[rules]]
name = "no-actions"

[rules.trigger]
type = "file_created"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := loadAndValidate(&rootOptions{configPath: path})
	var ee *ExitError
	if !errors.As(err, &ee) || ee.Code() != 2 {
		t.Fatalf("expected exit code 2 for a rule with no actions, got %v", err)
	}
}
