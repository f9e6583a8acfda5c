package actions

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"

	"github.com/gatewatch/sentinel/internal/config"
	"github.com/gatewatch/sentinel/internal/events"
)

// captureCapBytes is the bound on stdout/stderr capture for Execute,
// PowerShell, and the Script sandbox's exec.run, per SPEC_FULL.md §4.4.
const captureCapBytes = 64 * 1024

type executeAction struct {
	command    string
	args       []string
	workingDir string
}

func newExecuteAction(ac config.ActionConfig) (Action, error) {
	if ac.Command == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "execute action requires command"}
	}
	return &executeAction{command: ac.Command, args: ac.Args, workingDir: ac.WorkingDir}, nil
}

func (a *executeAction) Kind() string { return "execute" }

func (a *executeAction) Execute(ctx context.Context, ev events.Event, dryRun bool) (Result, error) {
	if dryRun {
		return Result{Success: true, Message: "dry-run: skipped execute " + a.command}, nil
	}
	return runCommand(ctx, a.command, a.args, a.workingDir, ev)
}

func (a *executeAction) Describe() string { return "execute: " + a.command }

type powerShellAction struct {
	script     string
	workingDir string
}

func newPowerShellAction(ac config.ActionConfig) (Action, error) {
	if ac.Script == "" {
		return nil, &Error{Kind: ErrConfiguration, Msg: "powershell action requires script"}
	}
	return &powerShellAction{script: ac.Script, workingDir: ac.WorkingDir}, nil
}

func (a *powerShellAction) Kind() string { return "powershell" }

func (a *powerShellAction) Execute(ctx context.Context, ev events.Event, dryRun bool) (Result, error) {
	if dryRun {
		return Result{Success: true, Message: "dry-run: skipped powershell"}, nil
	}
	script := expandPlaceholders(a.script, ev)
	args := []string{"-NoProfile", "-NonInteractive", "-Command", script}
	return runCommand(ctx, "powershell.exe", args, a.workingDir, ev)
}

func (a *powerShellAction) Describe() string {
	if len(a.script) > 50 {
		return "powershell: " + a.script[:50]
	}
	return "powershell: " + a.script
}

// runCommand spawns program with args, capturing stdout/stderr up to
// captureCapBytes each, and returns success iff the exit code is 0.
// Exceeding ctx's deadline kills the process and is reported as a
// timeout error rather than an execution error.
func runCommand(ctx context.Context, program string, args []string, workingDir string, ev events.Event) (Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = append(os.Environ(), envForEvent(ev)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	stdoutStr := capBuffer(&stdout)
	stderrStr := capBuffer(&stderr)

	if ctx.Err() != nil {
		return Result{}, timeoutErr()
	}
	if err != nil {
		return Result{}, execErr("command %q failed: %v: %s", program, err, stderrStr)
	}
	return Result{Success: true, Message: stdoutStr}, nil
}

func capBuffer(buf *bytes.Buffer) string {
	if buf.Len() <= captureCapBytes {
		return buf.String()
	}
	log.Warn().Int("bytes", buf.Len()).Int("cap", captureCapBytes).
		Msg("command output exceeds the capture cap, remainder discarded")
	limited := io.LimitReader(bytes.NewReader(buf.Bytes()), captureCapBytes)
	out, _ := io.ReadAll(limited)
	return string(out) + "...[truncated]"
}
