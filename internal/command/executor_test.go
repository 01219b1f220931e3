package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/reliability"
)

type fakeRunner struct {
	lines []string
	res   RunResult
	err   error
}

func (f *fakeRunner) Run(_ context.Context, line string) (RunResult, error) {
	f.lines = append(f.lines, line)
	return f.res, f.err
}

func TestExecutorSuccess(t *testing.T) {
	runner := &fakeRunner{res: RunResult{Stdout: `{"ok":true}`}}
	exec := NewExecutor(NewRewriter(testToken, DialectPOSIX), runner, zerolog.Nop(), nil)

	res := exec.Execute(context.Background(), "curl -X GET https://api.example.com/data")
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	want := `curl -X GET -H "Authorization: Bearer tok-123" https://api.example.com/data`
	if res.ModifiedCommand != want {
		t.Fatalf("ModifiedCommand = %q, want %q", res.ModifiedCommand, want)
	}
	if strings.Count(res.ModifiedCommand, "Authorization: Bearer") != 1 {
		t.Fatalf("expected exactly one auth header in %q", res.ModifiedCommand)
	}
	if len(runner.lines) != 1 || runner.lines[0] != want {
		t.Fatalf("runner lines = %v", runner.lines)
	}
	if res.Stdout != `{"ok":true}` || res.Stderr != "" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestExecutorRejectsNonCurl(t *testing.T) {
	runner := &fakeRunner{}
	exec := NewExecutor(NewRewriter(testToken, DialectPOSIX), runner, zerolog.Nop(), nil)

	res := exec.Execute(context.Background(), "ls -la")
	if res.Success {
		t.Fatalf("Success = true, want false")
	}
	if res.Failure != reliability.FailureValidation {
		t.Fatalf("Failure = %q, want validation", res.Failure)
	}
	if len(runner.lines) != 0 {
		t.Fatalf("runner invoked for invalid command")
	}
	if res.ModifiedCommand != "" {
		t.Fatalf("ModifiedCommand = %q, want empty", res.ModifiedCommand)
	}
}

func TestExecutorRunFailureKeepsOutput(t *testing.T) {
	runner := &fakeRunner{
		res: RunResult{Stderr: "curl: (6) Could not resolve host", ExitCode: 6},
		err: fmt.Errorf("command failed: %w", errors.New("exit status 6")),
	}
	exec := NewExecutor(NewRewriter("", DialectPOSIX), runner, zerolog.Nop(), nil)

	res := exec.Execute(context.Background(), "curl https://nope.invalid")
	if res.Success {
		t.Fatalf("Success = true, want false")
	}
	if res.Stderr == "" || res.ExitCode != 6 {
		t.Fatalf("stderr=%q exit=%d", res.Stderr, res.ExitCode)
	}
	if res.ModifiedCommand != "curl https://nope.invalid" {
		t.Fatalf("ModifiedCommand = %q, want unchanged without token", res.ModifiedCommand)
	}
}

func TestExecResultJSONHasEmptyStreams(t *testing.T) {
	raw, err := json.Marshal(ExecResult{OriginalCommand: "curl x"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"stdout", "stderr"} {
		v, ok := decoded[key]
		if !ok || v != "" {
			t.Fatalf("%s = %#v, want empty string", key, v)
		}
	}
}
