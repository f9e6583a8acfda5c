package config

import "fmt"

// Validate performs the structural checks SPEC_FULL.md §6.1 requires
// before a Config is handed to the rule/source compilers: unique
// source and rule names, and every rule declaring at least one action.
// Semantic validity of triggers/glob patterns is left to
// rules.CompileTrigger and rules.Compile, which run as part of the
// same reload cycle and report their own errors.
func Validate(cfg *Config) []error {
	var errs []error

	seenSources := make(map[string]bool)
	for i, s := range cfg.Sources {
		if s.Name == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("sources[%d]", i), Msg: "name is required"})
			continue
		}
		if seenSources[s.Name] {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("sources[%d]", i), Msg: fmt.Sprintf("duplicate source name %q", s.Name)})
			continue
		}
		seenSources[s.Name] = true

		if err := validateSourceType(s); err != nil {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("sources[%d]", i), Msg: err.Error()})
		}
	}

	seenRules := make(map[string]bool)
	for i, r := range cfg.Rules {
		if r.Name == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("rules[%d]", i), Msg: "name is required"})
			continue
		}
		if seenRules[r.Name] {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("rules[%d]", i), Msg: fmt.Sprintf("duplicate rule name %q", r.Name)})
			continue
		}
		seenRules[r.Name] = true

		if len(r.AllActions()) == 0 {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("rules[%d]", i), Msg: "at least one action is required"})
		}
		if r.Trigger.Type == "" {
			errs = append(errs, &ValidationError{Path: fmt.Sprintf("rules[%d]", i), Msg: "trigger.type is required"})
		}
	}

	return errs
}

func validateSourceType(s SourceConfig) error {
	switch s.Type {
	case SourceTypeFileWatcher:
		if len(s.Paths) == 0 {
			return fmt.Errorf("file_watcher source %q requires at least one path", s.Name)
		}
	case SourceTypeWindowWatcher:
		// title_pattern and process_pattern are both optional filters;
		// an empty watcher matches every window event.
	case SourceTypeProcessMonitor:
		// process_name is optional; empty means "all processes".
	case SourceTypeRegistryMonitor:
		if s.Root == "" || s.Key == "" {
			return fmt.Errorf("registry_monitor source %q requires root and key", s.Name)
		}
	case SourceTypeTimer:
		if s.IntervalSeconds <= 0 {
			return fmt.Errorf("timer source %q requires interval_seconds > 0", s.Name)
		}
	default:
		return fmt.Errorf("source %q has unknown type %q", s.Name, s.Type)
	}
	return nil
}
