// Package script runs workspace scripts through the process sandbox.
//
// The engine resolves the script path inside the workspace, picks an
// interpreter from the file extension, and executes with a wall-clock
// timeout. Script failures — non-zero exits and timeouts — are results,
// not errors; errors are reserved for requests that never reach a
// process (bad path, unknown extension, missing file) and for spawn
// failures.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jkaninda/kazi/internal/fsops"
	"github.com/jkaninda/kazi/internal/sandbox"
	"github.com/jkaninda/kazi/internal/workspace"
)

// DefaultTimeout bounds script runtime when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// MaxTimeout caps caller-supplied timeouts when no cap is configured.
const MaxTimeout = 5 * time.Minute

// interpreters maps script extensions to the program that runs them.
var interpreters = map[string]string{
	".py": "python3",
	".sh": "sh",
}

// Result is the outcome of a script execution.
//
// ExitCode is nil when the process was killed by timeout and no exit
// code is meaningful. Stdout and Stderr hold partial output in that case.
type Result struct {
	Success  bool          `json:"success"`
	ExitCode *int          `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Engine executes workspace scripts.
type Engine struct {
	ws             *workspace.Workspace
	sandbox        sandbox.Sandbox
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	logger         *slog.Logger
}

// New creates a script engine. A zero defaultTimeout falls back to
// DefaultTimeout, a zero maxTimeout to MaxTimeout.
func New(ws *workspace.Workspace, sb sandbox.Sandbox, defaultTimeout, maxTimeout time.Duration, logger *slog.Logger) *Engine {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if maxTimeout <= 0 {
		maxTimeout = MaxTimeout
	}
	return &Engine{ws: ws, sandbox: sb, defaultTimeout: defaultTimeout, maxTimeout: maxTimeout, logger: logger}
}

// Execute runs the script at the given workspace-relative path.
//
// Validation failures (empty or escaping path, missing script, unknown
// extension, directory target) return a typed error and no result. Once
// a process is launched, the outcome is always a Result: timeouts set
// Success=false with a nil ExitCode, non-zero exits set Success=false
// with the code, and the caller decides what to do with either.
func (e *Engine) Execute(ctx context.Context, relPath string, args []string, timeout time.Duration) (*Result, error) {
	const op = "execute"

	resolved, err := e.ws.Resolve(relPath)
	if err != nil {
		return nil, fsops.Classify(op, relPath, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fsops.Failf(fsops.KindNotFound, op, relPath, "script not found: %s", relPath)
		}
		return nil, fsops.Classify(op, relPath, err)
	}
	if info.IsDir() {
		return nil, fsops.Failf(fsops.KindNotAFile, op, relPath, "%s is a directory, not a script", relPath)
	}

	ext := filepath.Ext(resolved)
	interpreter, ok := interpreters[ext]
	if !ok {
		return nil, fsops.Failf(fsops.KindInvalidArgument, op, relPath,
			"unsupported script extension %q (supported: .py, .sh)", ext)
	}

	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	if timeout > e.maxTimeout {
		timeout = e.maxTimeout
	}

	command := make([]string, 0, 2+len(args))
	command = append(command, interpreter, resolved)
	command = append(command, args...)

	e.logger.Info("executing script",
		slog.String("path", relPath),
		slog.String("interpreter", interpreter),
		slog.Duration("timeout", timeout),
	)

	res, err := e.sandbox.Execute(ctx, sandbox.ExecutionRequest{
		Command:    command,
		WorkingDir: e.ws.Root,
		Timeout:    timeout,
	})
	if err != nil {
		// The process never ran; surface as a spawn failure.
		return nil, &fsops.Error{
			Kind: fsops.KindSpawnFailure,
			Op:   op,
			Path: relPath,
			Msg:  fmt.Sprintf("failed to launch %s: %v", interpreter, err),
			Err:  err,
		}
	}

	out := &Result{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	switch {
	case res.TimedOut:
		out.Error = fmt.Sprintf("execution timed out after %s", timeout)
	case res.ExitCode != 0:
		code := res.ExitCode
		out.ExitCode = &code
		out.Error = fmt.Sprintf("script exited with code %d", code)
	default:
		code := 0
		out.ExitCode = &code
		out.Success = true
	}
	return out, nil
}
