package command

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/observability"
	"github.com/antoniostano/backendmcp/internal/policy"
	"github.com/antoniostano/backendmcp/internal/reliability"
)

// ExecResult is the audit record of one execute_curl call. Stdout and Stderr
// are always present, empty when nothing was captured.
type ExecResult struct {
	Success         bool                    `json:"success"`
	OriginalCommand string                  `json:"originalCommand"`
	ModifiedCommand string                  `json:"modifiedCommand,omitempty"`
	Stdout          string                  `json:"stdout"`
	Stderr          string                  `json:"stderr"`
	ExitCode        int                     `json:"exitCode"`
	Error           string                  `json:"error,omitempty"`
	Failure         reliability.FailureKind `json:"failure,omitempty"`
	DurationMS      int64                   `json:"durationMs"`
}

type Executor struct {
	rewriter *Rewriter
	runner   Runner
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewExecutor(rewriter *Rewriter, runner Runner, logger zerolog.Logger, metrics *observability.Metrics) *Executor {
	logger = logger.With().Str("component", "command").Logger()
	if !rewriter.HasToken() {
		logger.Warn().Msg("CURL_BEARER_TOKEN is empty; commands run without an injected Authorization header")
	}
	return &Executor{
		rewriter: rewriter,
		runner:   runner,
		logger:   logger,
		metrics:  metrics,
	}
}

func (e *Executor) Execute(ctx context.Context, original string) ExecResult {
	res := ExecResult{OriginalCommand: original, ExitCode: -1}

	modified, err := e.rewriter.Rewrite(original)
	if err != nil {
		res.Error = err.Error()
		res.Failure = reliability.ClassifyExecError(err)
		e.metrics.ObserveCommand(string(res.Failure), 0)
		e.logger.Info().Err(err).Msg("command rejected")
		return res
	}
	res.ModifiedCommand = modified

	redacted, _ := policy.RedactSecrets(modified, e.rewriter.Token())
	e.logger.Info().
		Str("dialect", string(e.rewriter.Dialect())).
		Str("command", redacted).
		Msg("executing command")

	started := time.Now()
	out, err := e.runner.Run(ctx, modified)
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	res.ExitCode = out.ExitCode
	res.DurationMS = time.Since(started).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		res.Failure = reliability.ClassifyExecError(err)
		e.metrics.ObserveCommand(string(res.Failure), time.Since(started))
		e.logger.Warn().
			Err(err).
			Str("failure", string(res.Failure)).
			Int("exit_code", res.ExitCode).
			Msg("command failed")
		return res
	}

	res.Success = true
	e.metrics.ObserveCommand("ok", time.Since(started))
	e.logger.Debug().Int64("duration_ms", res.DurationMS).Msg("command finished")
	return res
}
