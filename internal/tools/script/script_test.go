package script

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/kazi/internal/fsops"
	"github.com/jkaninda/kazi/internal/sandbox"
	"github.com/jkaninda/kazi/internal/script"
	"github.com/jkaninda/kazi/internal/workspace"
)

func newTestTool(t *testing.T) (*ExecuteTool, *fsops.FS) {
	t.Helper()
	ws, err := workspace.New(filepath.Join(t.TempDir(), "ws"))
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sb := sandbox.NewProcessSandbox(sandbox.ProcessConfig{KillGrace: 200 * time.Millisecond}, logger)
	engine := script.New(ws, sb, 5*time.Second, 0, logger)
	return NewExecuteTool(engine, logger), fsops.New(ws, logger)
}

func TestExecuteScript(t *testing.T) {
	tool, fs := newTestTool(t)
	if _, err := fs.Create("hi.sh", []byte("echo hi $1\n")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		"path": "hi.sh",
		"args": []any{"there"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Success {
		t.Errorf("Success = false: %+v", res)
	}
	if !strings.Contains(res.Output, "hi there") {
		t.Errorf("Output = %q", res.Output)
	}
	if res.Metadata["exit_code"] != 0 {
		t.Errorf("exit_code = %v, want 0", res.Metadata["exit_code"])
	}
}

func TestExecuteScriptFailure(t *testing.T) {
	tool, fs := newTestTool(t)
	if _, err := fs.Create("bad.sh", []byte("echo oops >&2\nexit 2\n")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{"path": "bad.sh"})
	if err != nil {
		t.Fatalf("script failure must be a result, got error %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.Metadata["exit_code"] != 2 {
		t.Errorf("exit_code = %v, want 2", res.Metadata["exit_code"])
	}
	if !strings.Contains(res.Output, "oops") {
		t.Errorf("stderr missing from Output: %q", res.Output)
	}
}

func TestExecuteScriptTimeout(t *testing.T) {
	tool, fs := newTestTool(t)
	if _, err := fs.Create("slow.sh", []byte("echo begun\nsleep 30\n")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		"path":            "slow.sh",
		"timeout_seconds": 0.3,
	})
	if err != nil {
		t.Fatalf("timeout must be a result, got error %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.Metadata["timed_out"] != true {
		t.Errorf("timed_out = %v, want true", res.Metadata["timed_out"])
	}
	if _, hasCode := res.Metadata["exit_code"]; hasCode {
		t.Error("exit_code present on timeout, want absent")
	}
	if !strings.Contains(res.Output, "begun") {
		t.Errorf("partial output lost: %q", res.Output)
	}
}

func TestExecuteMissingScript(t *testing.T) {
	tool, _ := newTestTool(t)

	_, err := tool.Execute(context.Background(), map[string]any{"path": "nope.sh"})
	if !fsops.IsKind(err, fsops.KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestValidate(t *testing.T) {
	tool, _ := newTestTool(t)

	tests := []struct {
		name   string
		params map[string]any
		ok     bool
	}{
		{"path only", map[string]any{"path": "a.sh"}, true},
		{"with args and timeout", map[string]any{"path": "a.sh", "args": []any{"x"}, "timeout_seconds": 10.0}, true},
		{"missing path", map[string]any{}, false},
		{"empty path", map[string]any{"path": ""}, false},
		{"bad args element", map[string]any{"path": "a.sh", "args": []any{1}}, false},
		{"args not array", map[string]any{"path": "a.sh", "args": "x"}, false},
		{"negative timeout", map[string]any{"path": "a.sh", "timeout_seconds": -1.0}, false},
		{"timeout not number", map[string]any{"path": "a.sh", "timeout_seconds": "10"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tool.Validate(tc.params)
			if tc.ok && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Error("Validate accepted bad params")
			}
		})
	}
}
