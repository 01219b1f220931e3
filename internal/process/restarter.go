package process

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/command"
	"github.com/antoniostano/backendmcp/internal/observability"
	"github.com/antoniostano/backendmcp/internal/reliability"
)

type StepResult struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	Error    string `json:"error"`
	ExitCode int    `json:"exitCode"`
}

type StartStep struct {
	Command   string    `json:"command"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Output    string    `json:"output"`
	Error     string    `json:"error"`
}

type RestartResult struct {
	Success      bool       `json:"success"`
	Entrypoint   string     `json:"entrypoint"`
	LogFile      string     `json:"logFile"`
	ErrorLogFile string     `json:"errorLogFile"`
	PortReleased bool       `json:"portReleased"`
	KillStep     StepResult `json:"killStep"`
	StartStep    StartStep  `json:"startStep"`
	Error        string     `json:"error,omitempty"`
}

type RestarterOptions struct {
	// KillCommand may contain {port}.
	KillCommand string
	Port        int
	Defaults    LaunchSpec
	// ReleaseTimeout bounds the wait for the port to close after the kill.
	ReleaseTimeout time.Duration
	Logger         zerolog.Logger
	Metrics        *observability.Metrics
}

// Restarter frees the app port and starts a fresh node process. It waits for
// the kill step; the launch is fire-and-forget.
type Restarter struct {
	runner   command.Runner
	launcher Launcher

	killCommand    string
	port           int
	defaults       LaunchSpec
	releaseTimeout time.Duration
	logger         zerolog.Logger
	metrics        *observability.Metrics

	portInUse func(addr string, timeout time.Duration) bool
}

func NewRestarter(runner command.Runner, launcher Launcher, opts RestarterOptions) *Restarter {
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = 3 * time.Second
	}
	if strings.TrimSpace(opts.KillCommand) == "" {
		opts.KillCommand = "npx kill-port {port}"
	}
	return &Restarter{
		runner:         runner,
		launcher:       launcher,
		killCommand:    opts.KillCommand,
		port:           opts.Port,
		defaults:       opts.Defaults,
		releaseTimeout: opts.ReleaseTimeout,
		logger:         opts.Logger.With().Str("component", "restarter").Logger(),
		metrics:        opts.Metrics,
		portInUse:      isTCPListening,
	}
}

// Restart kills whatever holds the port, waits for it to close and requests a
// new launch. Empty fields in spec fall back to the configured defaults.
func (r *Restarter) Restart(ctx context.Context, spec LaunchSpec) RestartResult {
	spec = r.resolve(spec)
	res := RestartResult{
		Entrypoint:   spec.Entrypoint,
		LogFile:      spec.LogFile,
		ErrorLogFile: spec.ErrorLogFile,
	}
	r.logger.Info().
		Str("entrypoint", spec.Entrypoint).
		Str("log_file", spec.LogFile).
		Str("error_log_file", spec.ErrorLogFile).
		Msg("restarting node process")

	if err := r.launcher.Stop(); err != nil {
		r.logger.Warn().Err(err).Msg("stop previous launch failed")
	}

	killLine := strings.ReplaceAll(r.killCommand, "{port}", strconv.Itoa(r.port))
	out, err := r.runner.Run(ctx, killLine)
	res.KillStep = StepResult{
		Command:  killLine,
		Output:   strings.TrimSpace(out.Stdout),
		Error:    strings.TrimSpace(out.Stderr),
		ExitCode: out.ExitCode,
	}
	if err != nil {
		// A non-zero exit (nothing listening, say) is recorded and the
		// restart goes on; a timeout or spawn failure aborts it.
		if reliability.ClassifyExecError(err) != reliability.FailureExit {
			res.Error = err.Error()
			r.metrics.ObserveLaunch("kill_failed")
			r.logger.Warn().Err(err).Str("command", killLine).Msg("kill step failed")
			return res
		}
		if res.KillStep.Error == "" {
			res.KillStep.Error = err.Error()
		}
		r.logger.Info().Int("exit_code", out.ExitCode).Msg("kill step exited non-zero")
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(r.port))
	res.PortReleased = r.waitForRelease(ctx, addr)
	if !res.PortReleased {
		r.logger.Warn().Str("addr", addr).Msg("port still in use; launching anyway")
	}

	launch, err := r.launcher.Launch(spec)
	res.StartStep.Command = "node " + spec.Entrypoint
	if err != nil {
		res.StartStep.Error = err.Error()
		res.Error = err.Error()
		r.metrics.ObserveLaunch("error")
		r.logger.Error().Err(err).Msg("launch failed")
		return res
	}
	res.StartStep = StartStep{
		Command:   launch.Command,
		PID:       launch.PID,
		StartedAt: launch.StartedAt,
		Output:    "launch requested",
	}
	res.Success = true
	r.metrics.ObserveLaunch("ok")
	r.logger.Info().Int("pid", launch.PID).Str("command", launch.Command).Msg("launch requested")
	return res
}

func (r *Restarter) resolve(spec LaunchSpec) LaunchSpec {
	if strings.TrimSpace(spec.Entrypoint) == "" {
		spec.Entrypoint = r.defaults.Entrypoint
	}
	if strings.TrimSpace(spec.LogFile) == "" {
		spec.LogFile = r.defaults.LogFile
	}
	if strings.TrimSpace(spec.ErrorLogFile) == "" {
		spec.ErrorLogFile = r.defaults.ErrorLogFile
	}
	return spec
}

func (r *Restarter) waitForRelease(ctx context.Context, addr string) bool {
	deadline := time.Now().Add(r.releaseTimeout)
	for attempt := 0; ; attempt++ {
		if !r.portInUse(addr, 160*time.Millisecond) {
			return true
		}
		wait := reliability.ExponentialBackoff(attempt, 50*time.Millisecond, 800*time.Millisecond)
		if time.Now().Add(wait).After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func isTCPListening(addr string, timeout time.Duration) bool {
	if strings.TrimSpace(addr) == "" {
		return false
	}
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}
