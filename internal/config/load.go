package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load parses a single TOML config file at path into a Config with
// EngineConfig defaults pre-filled.
func Load(path string) (*Config, error) {
	cfg := &Config{Engine: DefaultEngineConfig()}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir parses every *.toml file directly under dir (non-recursive,
// matching SPEC_FULL.md §6.1's single config directory model) and
// merges their Sources/Rules lists. Engine settings come from whichever
// file is last in sorted filename order; a file without an [engine]
// table still counts and contributes the defaults, so engine settings
// take effect only from the file that sorts last (e.g. "zz-engine.toml").
func LoadDir(dir string) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config directory %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	merged := &Config{Engine: DefaultEngineConfig()}
	for _, p := range paths {
		cfg, err := Load(p)
		if err != nil {
			return nil, err
		}
		merged.Sources = append(merged.Sources, cfg.Sources...)
		merged.Rules = append(merged.Rules, cfg.Rules...)
		merged.Engine = cfg.Engine
	}
	return merged, nil
}
