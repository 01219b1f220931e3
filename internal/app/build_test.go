package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/backendmcp/internal/config"
	"github.com/antoniostano/backendmcp/internal/toolserver"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.MetricsNamespace = "test_app_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	cfg.TasksDBPath = filepath.Join(t.TempDir(), "tasks.db")
	cfg.LogFilePath = filepath.Join(t.TempDir(), "app.log")
	return cfg
}

func TestBuildWiresEverything(t *testing.T) {
	cfg := testConfig(t)
	res, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if got := res.Tasks.StoreMode(); got != "sqlite" {
		t.Fatalf("StoreMode() = %q, want sqlite", got)
	}
	if got := len(res.ToolServer.Tools()); got != 9 {
		t.Fatalf("registered tools = %d (%v), want 9", got, res.ToolServer.Tools())
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestBuildHonoursEnabledTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnabledTools = []string{toolserver.ToolNextTask, toolserver.ToolAddTask}
	res, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	got := res.ToolServer.Tools()
	if len(got) != 2 || got[0] != toolserver.ToolAddTask || got[1] != toolserver.ToolNextTask {
		t.Fatalf("Tools() = %v, want [add next]", got)
	}
}

func TestBuildFailsOnUnreachableStore(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg.TasksDBPath = filepath.Join(blocker, "tasks.db")
	if _, err := Build(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatalf("Build() error = nil, want store init failure")
	}
}
