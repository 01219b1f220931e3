package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRewriteCommand(t *testing.T) {
	t.Setenv("CURL_BEARER_TOKEN", "tok-123")
	t.Setenv("TASKS_DB_PATH", filepath.Join(t.TempDir(), "tasks.db"))

	out, err := execute(t, "rewrite", "--dialect", "posix", "curl", "https://api.example.com/x")
	if err != nil {
		t.Fatalf("rewrite error = %v", err)
	}
	want := `curl -H "Authorization: Bearer tok-123" https://api.example.com/x`
	if strings.TrimSpace(out) != want {
		t.Fatalf("rewrite output = %q, want %q", out, want)
	}
}

func TestRewriteFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CURL_BEARER_TOKEN", "from-env")

	out, err := execute(t, "rewrite", "--token", "from-flag", "--dialect", "powershell", "curl 'https://x'")
	if err != nil {
		t.Fatalf("rewrite error = %v", err)
	}
	want := `curl.exe -H "Authorization: Bearer from-flag" "https://x"`
	if strings.TrimSpace(out) != want {
		t.Fatalf("rewrite output = %q, want %q", out, want)
	}
}

func TestRewriteRejectsNonCurl(t *testing.T) {
	if _, err := execute(t, "rewrite", "rm", "-rf", "/"); err == nil {
		t.Fatalf("rewrite(rm) error = nil, want invalid command")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if strings.TrimSpace(out) != version {
		t.Fatalf("version output = %q, want %q", out, version)
	}
}

func TestServeNoStdioNeedsHTTP(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TASKS_DB_PATH", filepath.Join(t.TempDir(), "tasks.db"))
	if _, err := execute(t, "serve", "--no-stdio"); err == nil {
		t.Fatalf("serve --no-stdio error = nil, want missing http addr")
	}
}

func TestRewriteReadsConfigFileFromEnv(t *testing.T) {
	t.Setenv("CURL_BEARER_TOKEN", "")
	path := filepath.Join(t.TempDir(), "backendmcp.toml")
	body := "[curl]\nbearer_token = \"from-file\"\ndialect = \"posix\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)

	out, err := execute(t, "rewrite", "curl", "https://x")
	if err != nil {
		t.Fatalf("rewrite error = %v", err)
	}
	want := `curl -H "Authorization: Bearer from-file" https://x`
	if strings.TrimSpace(out) != want {
		t.Fatalf("rewrite output = %q, want %q", out, want)
	}
}
