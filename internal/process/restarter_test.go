package process

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/command"
)

type fakeLauncher struct {
	specs   []LaunchSpec
	stopped int
	err     error
}

func (f *fakeLauncher) Launch(spec LaunchSpec) (Launch, error) {
	f.specs = append(f.specs, spec)
	if f.err != nil {
		return Launch{}, f.err
	}
	return Launch{PID: 4242, Command: "node " + spec.Entrypoint, StartedAt: time.Now().UTC()}, nil
}

func (f *fakeLauncher) Stop() error {
	f.stopped++
	return nil
}

type stubRunner struct {
	lines []string
	res   command.RunResult
	err   error
}

func (s *stubRunner) Run(_ context.Context, line string) (command.RunResult, error) {
	s.lines = append(s.lines, line)
	return s.res, s.err
}

func newTestRestarter(runner command.Runner, launcher Launcher) *Restarter {
	r := NewRestarter(runner, launcher, RestarterOptions{
		Port:           3000,
		Defaults:       LaunchSpec{Entrypoint: "server.js", LogFile: "node.log", ErrorLogFile: "node-error.log"},
		ReleaseTimeout: 200 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	r.portInUse = func(string, time.Duration) bool { return false }
	return r
}

func TestRestartUsesDefaultsAndKillsPort(t *testing.T) {
	runner := &stubRunner{res: command.RunResult{Stdout: "Process on port 3000 killed\n"}}
	launcher := &fakeLauncher{}
	r := newTestRestarter(runner, launcher)

	res := r.Restart(context.Background(), LaunchSpec{LogFile: "custom.log"})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if len(runner.lines) != 1 || runner.lines[0] != "npx kill-port 3000" {
		t.Fatalf("kill lines = %v, want [npx kill-port 3000]", runner.lines)
	}
	if res.KillStep.Output != "Process on port 3000 killed" {
		t.Fatalf("KillStep.Output = %q", res.KillStep.Output)
	}
	if len(launcher.specs) != 1 {
		t.Fatalf("launches = %d, want 1", len(launcher.specs))
	}
	got := launcher.specs[0]
	if got.Entrypoint != "server.js" || got.LogFile != "custom.log" || got.ErrorLogFile != "node-error.log" {
		t.Fatalf("launch spec = %+v", got)
	}
	if launcher.stopped != 1 {
		t.Fatalf("Stop() calls = %d, want 1", launcher.stopped)
	}
	if res.StartStep.PID != 4242 || !res.PortReleased {
		t.Fatalf("StartStep = %+v, PortReleased = %v", res.StartStep, res.PortReleased)
	}
}

func TestRestartContinuesAfterNonZeroKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	launcher := &fakeLauncher{}
	r := newTestRestarter(command.NewShellRunner(command.DialectPOSIX, 5*time.Second), launcher)
	r.killCommand = "echo no process on {port} >&2; exit 1"

	res := r.Restart(context.Background(), LaunchSpec{})
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if res.KillStep.ExitCode != 1 {
		t.Fatalf("KillStep.ExitCode = %d, want 1", res.KillStep.ExitCode)
	}
	if !strings.Contains(res.KillStep.Error, "no process on 3000") {
		t.Fatalf("KillStep.Error = %q", res.KillStep.Error)
	}
	if len(launcher.specs) != 1 {
		t.Fatalf("launches = %d, want 1", len(launcher.specs))
	}
}

func TestRestartAbortsOnKillTimeout(t *testing.T) {
	runner := &stubRunner{err: context.DeadlineExceeded}
	launcher := &fakeLauncher{}
	r := newTestRestarter(runner, launcher)

	res := r.Restart(context.Background(), LaunchSpec{})
	if res.Success {
		t.Fatalf("Success = true, want false")
	}
	if len(launcher.specs) != 0 {
		t.Fatalf("launched after failed kill step")
	}
}

func TestRestartReportsLaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("exec: \"node\": executable file not found in $PATH")}
	r := newTestRestarter(&stubRunner{}, launcher)

	res := r.Restart(context.Background(), LaunchSpec{})
	if res.Success {
		t.Fatalf("Success = true, want false")
	}
	if res.StartStep.Error == "" || res.Error == "" {
		t.Fatalf("launch error not reported: %+v", res)
	}
}

func TestWaitForReleaseGivesUp(t *testing.T) {
	r := newTestRestarter(&stubRunner{}, &fakeLauncher{})
	checks := 0
	r.portInUse = func(string, time.Duration) bool {
		checks++
		return true
	}
	started := time.Now()
	if r.waitForRelease(context.Background(), "127.0.0.1:3000") {
		t.Fatalf("waitForRelease() = true, want false while port is held")
	}
	if checks < 2 {
		t.Fatalf("checks = %d, want retries", checks)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("waitForRelease() exceeded its budget")
	}
}

func TestIsTCPListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if !isTCPListening(addr, time.Second) {
		t.Fatalf("isTCPListening(%s) = false with listener open", addr)
	}
	_ = ln.Close()
	if isTCPListening(addr, 200*time.Millisecond) {
		t.Fatalf("isTCPListening(%s) = true after close", addr)
	}
	if isTCPListening("", time.Second) {
		t.Fatalf("isTCPListening(empty) = true")
	}
}

func TestNodeLauncherWritesLogs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "app.sh")
	if err := os.WriteFile(script, []byte("echo started\necho boom >&2\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	spec := LaunchSpec{
		Entrypoint:   script,
		LogFile:      filepath.Join(dir, "logs", "out.log"),
		ErrorLogFile: filepath.Join(dir, "logs", "err.log"),
	}
	l := NewNodeLauncher("/bin/sh", zerolog.Nop())
	launch, err := l.Launch(spec)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if launch.PID <= 0 || !strings.HasSuffix(launch.Command, "app.sh") {
		t.Fatalf("Launch() = %+v", launch)
	}

	waitForFile(t, spec.LogFile, "started")
	waitForFile(t, spec.ErrorLogFile, "boom")
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestNodeLauncherStopInterruptsRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "sleep.sh")
	if err := os.WriteFile(script, []byte("sleep 30\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	l := NewNodeLauncher("/bin/sh", zerolog.Nop())
	if _, err := l.Launch(LaunchSpec{
		Entrypoint:   script,
		LogFile:      filepath.Join(dir, "out.log"),
		ErrorLogFile: filepath.Join(dir, "err.log"),
	}); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}

	started := time.Now()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("Stop() took too long")
	}
	if err := l.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func waitForFile(t *testing.T, path, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := os.ReadFile(path)
		if err == nil && strings.Contains(string(raw), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s never contained %q", path, want)
}
