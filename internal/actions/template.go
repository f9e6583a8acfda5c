package actions

import (
	"regexp"
	"strings"

	"github.com/gatewatch/sentinel/internal/events"
)

var metadataPlaceholder = regexp.MustCompile(`\{\{metadata\.([A-Za-z0-9_]+)\}\}`)

// expandPlaceholders substitutes the fixed placeholders named in
// SPEC_FULL.md §4.4 (EVENT_PATH/EVENT_TYPE/EVENT_SOURCE plus
// metadata.<key>) into tmpl. Unknown metadata keys expand to the empty
// string rather than erroring, matching the engine's general policy of
// treating absent fields as non-fatal.
func expandPlaceholders(tmpl string, ev events.Event) string {
	path, _ := ev.Field("path")
	out := strings.NewReplacer(
		"{{EVENT_PATH}}", path,
		"{{EVENT_TYPE}}", string(ev.Kind),
		"{{EVENT_SOURCE}}", ev.Source,
	).Replace(tmpl)

	out = metadataPlaceholder.ReplaceAllStringFunc(out, func(match string) string {
		key := metadataPlaceholder.FindStringSubmatch(match)[1]
		v, _ := ev.Field(key)
		return v
	})
	return out
}

// envForEvent builds the META_<KEY> and EVENT_* environment variables
// Execute and PowerShell add on top of the engine's own environment.
func envForEvent(ev events.Event) []string {
	env := []string{
		"EVENT_PATH=" + firstOr(ev, "path"),
		"EVENT_TYPE=" + string(ev.Kind),
		"EVENT_SOURCE=" + ev.Source,
	}
	for k, v := range ev.Metadata {
		env = append(env, "META_"+strings.ToUpper(k)+"="+v)
	}
	return env
}

func firstOr(ev events.Event, key string) string {
	v, _ := ev.Field(key)
	return v
}
