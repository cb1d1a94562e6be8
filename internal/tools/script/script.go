// Package script implements the script-execution tool.
package script

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/kazi/internal/script"
	"github.com/jkaninda/kazi/internal/tools"
)

// ExecuteTool runs workspace scripts through the execution engine.
type ExecuteTool struct {
	engine *script.Engine
	logger *slog.Logger
}

// NewExecuteTool creates the execute_python tool.
func NewExecuteTool(engine *script.Engine, logger *slog.Logger) *ExecuteTool {
	return &ExecuteTool{engine: engine, logger: logger}
}

func (t *ExecuteTool) Name() string { return "execute_python" }
func (t *ExecuteTool) Description() string {
	return "Execute a Python or shell script from the workspace and return its output. " +
		"The script runs with a wall-clock timeout; timed-out runs return partial output."
}
func (t *ExecuteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Workspace-relative path of the script (.py or .sh)",
			},
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Arguments passed to the script",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Wall-clock timeout in seconds. Defaults to the server's configured timeout",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ExecuteTool) Validate(params map[string]any) error {
	v, ok := params["path"]
	if !ok {
		return fmt.Errorf("missing required parameter: path")
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("parameter path must be a string, got %T", v)
	}
	if s == "" {
		return fmt.Errorf("parameter path must not be empty")
	}
	if _, err := argsParam(params); err != nil {
		return err
	}
	if _, err := timeoutParam(params); err != nil {
		return err
	}
	return nil
}

func (t *ExecuteTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	path, _ := params["path"].(string)
	args, err := argsParam(params)
	if err != nil {
		return nil, err
	}
	timeout, err := timeoutParam(params)
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "execute_python executing",
		slog.String("path", path),
		slog.Int("args", len(args)),
	)

	result, err := t.engine.Execute(ctx, path, args, timeout)
	if err != nil {
		return nil, err
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}
	if result.Error != "" {
		output += "\n[error] " + result.Error
	}

	meta := map[string]any{
		"path":        path,
		"duration_ms": result.Duration.Milliseconds(),
		"timed_out":   result.ExitCode == nil,
	}
	if result.ExitCode != nil {
		meta["exit_code"] = *result.ExitCode
	}

	return &tools.Result{
		Output:   tools.TruncateOutput(output, tools.MaxOutputBytes),
		Success:  result.Success,
		Metadata: meta,
	}, nil
}

// argsParam extracts the optional args array. JSON decoding hands arrays
// over as []any, so each element is checked individually.
func argsParam(params map[string]any) ([]string, error) {
	v, ok := params["args"]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("parameter args must be an array of strings, got %T", v)
	}
	args := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("args[%d] must be a string, got %T", i, item)
		}
		args = append(args, s)
	}
	return args, nil
}

// timeoutParam extracts the optional timeout. Zero means "use the default".
func timeoutParam(params map[string]any) (time.Duration, error) {
	v, ok := params["timeout_seconds"]
	if !ok {
		return 0, nil
	}
	var seconds float64
	switch n := v.(type) {
	case float64:
		seconds = n
	case int:
		seconds = float64(n)
	default:
		return 0, fmt.Errorf("parameter timeout_seconds must be a number, got %T", v)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("parameter timeout_seconds must not be negative")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
