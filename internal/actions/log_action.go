package actions

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// logAction emits a structured record via zerolog. It never fails,
// matching the original engine's LogAction.
type logAction struct {
	message string
	level   zerolog.Level
}

func newLogAction(ac config.ActionConfig) (Action, error) {
	if ac.Message == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "log action requires message"}
	}
	level, err := parseLevel(ac.Level)
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Msg: err.Error()}
	}
	return &logAction{message: ac.Message, level: level}, nil
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(s)
}

func (a *logAction) Kind() string { return "log" }

func (a *logAction) Execute(_ context.Context, ev events.Event, _ bool) (Result, error) {
	msg := expandPlaceholders(a.message, ev)
	log.WithLevel(a.level).
		Str("source", "action").
		Str("event_kind", string(ev.Kind)).
		Str("event_source", ev.Source).
		Msg(msg)
	return Result{Success: true, Message: msg}, nil
}

func (a *logAction) Describe() string {
	return "log[" + a.level.String() + "]: " + a.message
}
