// Package rules compiles declarative trigger expressions into matcher
// trees and evaluates them against events.
package rules

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/gatewatch/sentinel/internal/events"
)

// Matcher is a compiled predicate over an event. Matchers are pure and
// side-effect free: repeated evaluation of the same event against the
// same matcher always yields the same result.
type Matcher interface {
	Match(events.Event) bool
	String() string
}

// KindEquals matches on exact event kind.
type KindEquals struct {
	Kind events.Kind
}

func (m KindEquals) Match(ev events.Event) bool { return ev.Kind == m.Kind }
func (m KindEquals) String() string             { return fmt.Sprintf("kind==%s", m.Kind) }

// FieldEquals matches a metadata field against an exact string value.
// A missing field is a non-match, never a panic.
type FieldEquals struct {
	Field string
	Value string
}

func (m FieldEquals) Match(ev events.Event) bool {
	v, ok := ev.Field(m.Field)
	return ok && v == m.Value
}

func (m FieldEquals) String() string { return fmt.Sprintf("%s==%q", m.Field, m.Value) }

// SubstringOn matches a metadata field via case-insensitive substring
// containment.
type SubstringOn struct {
	Field  string
	Needle string
}

func (m SubstringOn) Match(ev events.Event) bool {
	v, ok := ev.Field(m.Field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(v), strings.ToLower(m.Needle))
}

func (m SubstringOn) String() string { return fmt.Sprintf("%s contains %q", m.Field, m.Needle) }

// GlobOn matches a metadata field against a compiled glob pattern.
// '**' matches path separators; '*' does not, achieved by compiling
// with '/' as the only separator rune.
type GlobOn struct {
	Field   string
	Pattern string
	g       glob.Glob
}

// CompileGlobOn compiles pattern once at load time; a bad pattern is
// reported so the owning rule can be rejected rather than panicking at
// match time.
func CompileGlobOn(field, pattern string) (*GlobOn, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("compiling glob %q for field %q: %w", pattern, field, err)
	}
	return &GlobOn{Field: field, Pattern: pattern, g: g}, nil
}

func (m *GlobOn) Match(ev events.Event) bool {
	v, ok := ev.Field(m.Field)
	if !ok {
		return false
	}
	return m.g.Match(v)
}

func (m *GlobOn) String() string { return fmt.Sprintf("%s glob %q", m.Field, m.Pattern) }

// And matches iff every child matches. An empty And matches everything.
type And struct {
	Children []Matcher
}

func (m And) Match(ev events.Event) bool {
	for _, c := range m.Children {
		if !c.Match(ev) {
			return false
		}
	}
	return true
}

func (m And) String() string { return joinChildren("AND", m.Children) }

// Or matches iff any child matches.
type Or struct {
	Children []Matcher
}

func (m Or) Match(ev events.Event) bool {
	for _, c := range m.Children {
		if c.Match(ev) {
			return true
		}
	}
	return false
}

func (m Or) String() string { return joinChildren("OR", m.Children) }

// Not inverts its child.
type Not struct {
	Child Matcher
}

func (m Not) Match(ev events.Event) bool { return !m.Child.Match(ev) }
func (m Not) String() string             { return fmt.Sprintf("NOT(%s)", m.Child.String()) }

func joinChildren(op string, children []Matcher) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " "+op+" "))
}
