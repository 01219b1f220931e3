package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LaunchSpec struct {
	Entrypoint   string
	LogFile      string
	ErrorLogFile string
}

// Launch records a requested start. The process is not awaited.
type Launch struct {
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"startedAt"`
}

type Launcher interface {
	Launch(spec LaunchSpec) (Launch, error)
	// Stop asks the most recently launched process to exit, if it is still
	// running.
	Stop() error
}

type running struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// NodeLauncher starts `<binary> <entrypoint>` detached from the server's
// process group with output appended to log files.
type NodeLauncher struct {
	binary string
	logger zerolog.Logger

	mu      sync.Mutex
	current *running
}

func NewNodeLauncher(binary string, logger zerolog.Logger) *NodeLauncher {
	if strings.TrimSpace(binary) == "" {
		binary = "node"
	}
	return &NodeLauncher{
		binary: binary,
		logger: logger.With().Str("component", "launcher").Logger(),
	}
}

func (l *NodeLauncher) Launch(spec LaunchSpec) (Launch, error) {
	stdout, err := openLog(spec.LogFile)
	if err != nil {
		return Launch{}, err
	}
	defer stdout.Close()
	stderr, err := openLog(spec.ErrorLogFile)
	if err != nil {
		return Launch{}, err
	}
	defer stderr.Close()

	cmd := exec.Command(l.binary, spec.Entrypoint)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return Launch{}, fmt.Errorf("start %s: %w", l.binary, err)
	}

	run := &running{cmd: cmd, done: make(chan struct{})}
	l.mu.Lock()
	l.current = run
	l.mu.Unlock()

	launch := Launch{
		PID:       cmd.Process.Pid,
		Command:   l.binary + " " + spec.Entrypoint,
		StartedAt: time.Now().UTC(),
	}
	go func() {
		err := cmd.Wait()
		close(run.done)
		evt := l.logger.Info()
		if err != nil {
			evt = l.logger.Warn().Err(err)
		}
		evt.Int("pid", launch.PID).Str("command", launch.Command).Msg("launched process exited")
	}()
	return launch, nil
}

func (l *NodeLauncher) Stop() error {
	l.mu.Lock()
	run := l.current
	l.current = nil
	l.mu.Unlock()
	if run == nil {
		return nil
	}
	return stopProcessBestEffort(run)
}

func stopProcessBestEffort(run *running) error {
	if run.cmd.Process == nil {
		return nil
	}
	select {
	case <-run.done:
		return nil
	default:
	}
	// Try a graceful interrupt first.
	_ = run.cmd.Process.Signal(os.Interrupt)
	select {
	case <-run.done:
		return nil
	case <-time.After(700 * time.Millisecond):
		if err := run.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-run.done
		return nil
	}
}

func openLog(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
