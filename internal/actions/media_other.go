//go:build !windows

package actions

import "github.com/rs/zerolog/log"

func sendMediaKey(command string) (Result, error) {
	log.Info().Str("command", command).Msg("media action (no native backend on this platform)")
	return Result{Success: true, Message: "media key " + command + " (logged, not sent)"}, nil
}

func showNotification(title, message string) (Result, error) {
	return notifyFallback(title, message)
}
