package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// ShellRunner executes commands through the platform shell with a
// per-call timeout. Non-zero exit codes are results; errors mean the
// command never ran to completion (not found, timed out, cancelled).
type ShellRunner struct {
	timeout time.Duration
	logger  arbor.ILogger
}

// NewShellRunner creates a command runner with the given per-call timeout
func NewShellRunner(timeout time.Duration, logger arbor.ILogger) *ShellRunner {
	return &ShellRunner{
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes command through the shell and captures its output
func (r *ShellRunner) Run(ctx context.Context, command string) (*models.CommandResult, error) {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	name, args := shellCommand(command)
	cmd := exec.CommandContext(runCtx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn().
				Str("command", command).
				Dur("duration", duration).
				Msg("Command timed out")
			return nil, fmt.Errorf("command timed out after %s", r.timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result := &models.CommandResult{
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
			r.logger.Debug().
				Str("command", command).
				Int("exit_code", result.ExitCode).
				Dur("duration", duration).
				Msg("Command completed")
			return result, nil
		}
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	r.logger.Debug().
		Str("command", command).
		Int("exit_code", 0).
		Dur("duration", duration).
		Msg("Command completed")

	return &models.CommandResult{
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// shellCommand picks the platform shell invocation for a command line
func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/c", command}
	}
	return "sh", []string{"-c", command}
}

// RunCommandTool executes a shell command through the configured runner
type RunCommandTool struct {
	runner interfaces.CommandRunner
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Run a shell command and return its output. Arguments: command."
}

func (t *RunCommandTool) Invoke(ctx context.Context, args map[string]interface{}) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}

	result, err := t.runner.Run(ctx, command)
	if err != nil {
		return "", err
	}

	if result.ExitCode == 0 {
		return "STDOUT\n" + result.Stdout, nil
	}
	return "STDERR\n" + result.Stderr, nil
}
