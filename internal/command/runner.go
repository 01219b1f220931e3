package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/antoniostano/backendmcp/internal/reliability"
)

type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

type Runner interface {
	Run(ctx context.Context, line string) (RunResult, error)
}

// ShellRunner runs a command line through the dialect's shell and waits for
// it, killing it once the timeout expires.
type ShellRunner struct {
	dialect Dialect
	timeout time.Duration
}

func NewShellRunner(dialect Dialect, timeout time.Duration) *ShellRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShellRunner{dialect: dialect, timeout: timeout}
}

// ShellCommand builds the argv that runs line under the dialect's shell.
func ShellCommand(dialect Dialect, line string) (string, []string) {
	if dialect == DialectPowerShell {
		return "powershell.exe", []string{"-NoProfile", "-NonInteractive", "-Command", line}
	}
	return "/bin/sh", []string{"-c", line}
}

func (r *ShellRunner) Run(ctx context.Context, line string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, args := ShellCommand(r.dialect, line)
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren holding the pipes open must not outlive the timeout.
	cmd.WaitDelay = time.Second

	started := time.Now()
	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: reliability.ExitCode(err),
		Duration: time.Since(started),
	}
	if err != nil {
		if ctx.Err() != nil {
			// exec.CommandContext may surface "signal: killed" instead of context cancellation.
			return res, fmt.Errorf("command timed out after %s: %w", r.timeout, ctx.Err())
		}
		errText := strings.TrimSpace(res.Stderr)
		if errText != "" {
			return res, fmt.Errorf("command failed: %w: %s", err, errText)
		}
		return res, fmt.Errorf("command failed: %w", err)
	}
	return res, nil
}
