package command

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/backendmcp/internal/reliability"
)

func skipWithoutSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestShellRunnerCapturesOutput(t *testing.T) {
	skipWithoutSh(t)
	r := NewShellRunner(DialectPOSIX, 5*time.Second)
	res, err := r.Run(context.Background(), `printf 'out'; printf 'err' >&2`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "out" || res.Stderr != "err" {
		t.Fatalf("Run() stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestShellRunnerExitCode(t *testing.T) {
	skipWithoutSh(t)
	r := NewShellRunner(DialectPOSIX, 5*time.Second)
	res, err := r.Run(context.Background(), `echo nope >&2; exit 7`)
	if err == nil {
		t.Fatalf("Run() error = nil, want exit failure")
	}
	if got := reliability.ClassifyExecError(err); got != reliability.FailureExit {
		t.Fatalf("failure = %q, want exit", got)
	}
	if res.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7", res.ExitCode)
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Fatalf("error %q should carry stderr", err)
	}
}

func TestShellRunnerTimeout(t *testing.T) {
	skipWithoutSh(t)
	r := NewShellRunner(DialectPOSIX, 100*time.Millisecond)
	started := time.Now()
	_, err := r.Run(context.Background(), "sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("Run() took %v, want prompt kill", elapsed)
	}
}

func TestShellCommandDialects(t *testing.T) {
	name, args := ShellCommand(DialectPOSIX, "curl x")
	if name != "/bin/sh" || len(args) != 2 || args[1] != "curl x" {
		t.Fatalf("ShellCommand(posix) = %s %v", name, args)
	}
	name, args = ShellCommand(DialectPowerShell, "curl.exe x")
	if name != "powershell.exe" || args[len(args)-1] != "curl.exe x" {
		t.Fatalf("ShellCommand(powershell) = %s %v", name, args)
	}
}
