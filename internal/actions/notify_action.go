package actions

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

type notifyAction struct {
	title   string
	message string
}

func newNotifyAction(ac config.ActionConfig) (Action, error) {
	if ac.Title == "" || ac.Message == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "notify action requires title and message"}
	}
	return &notifyAction{title: ac.Title, message: ac.Message}, nil
}

func (a *notifyAction) Kind() string { return "notify" }

func (a *notifyAction) Execute(_ context.Context, ev events.Event, dryRun bool) (Result, error) {
	title := expandPlaceholders(a.title, ev)
	message := expandPlaceholders(a.message, ev)
	if dryRun {
		return Result{Success: true, Message: "dry-run: skipped notify " + title}, nil
	}
	return showNotification(title, message)
}

func (a *notifyAction) Describe() string { return "notify: " + a.title }

const (
	MediaPlay   = "play"
	MediaPause  = "pause"
	MediaToggle = "toggle"
)

type mediaAction struct {
	command string
}

func newMediaAction(ac config.ActionConfig) (Action, error) {
	switch ac.Command {
	case MediaPlay, MediaPause, MediaToggle:
	default:
		return nil, &Error{Kind: ErrConfiguration, Msg: "media action command must be one of play|pause|toggle"}
	}
	return &mediaAction{command: ac.Command}, nil
}

func (a *mediaAction) Kind() string { return "media" }

func (a *mediaAction) Execute(_ context.Context, _ events.Event, dryRun bool) (Result, error) {
	if dryRun {
		return Result{Success: true, Message: "dry-run: skipped media " + a.command}, nil
	}
	return sendMediaKey(a.command)
}

func (a *mediaAction) Describe() string { return "media: " + a.command }

// notifyFallback is used on platforms where showNotification has no
// native implementation: it logs the notification at info level
// instead of silently dropping it.
func notifyFallback(title, message string) (Result, error) {
	log.Info().Str("title", title).Str("message", message).Msg("notification (no native backend on this platform)")
	return Result{Success: true, Message: message}, nil
}
