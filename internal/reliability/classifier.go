package reliability

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// ErrValidation marks caller input that was rejected before anything ran.
var ErrValidation = errors.New("validation failed")

type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureValidation FailureKind = "validation"
	FailureTimeout    FailureKind = "timeout"
	FailureExit       FailureKind = "exit"
	FailureSpawn      FailureKind = "spawn"
)

// ClassifyExecError maps an error from running an external command onto a
// failure kind.
func ClassifyExecError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, ErrValidation) {
		return FailureValidation
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return FailureExit
	}
	return FailureSpawn
}

// ExitCode extracts the process exit status; -1 when the command never
// produced one.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
