// Package sandbox provides isolated process execution for workspace scripts.
// All commands run through the sandbox — never directly on the host process's
// environment.
package sandbox

import (
	"context"
	"time"
)

// Sandbox executes commands in an isolated environment.
type Sandbox interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutionRequest defines what to run and under what constraints.
type ExecutionRequest struct {
	// Command is the program and arguments to execute (e.g. ["python3", "job.py"]).
	Command []string

	// WorkingDir is the directory the command runs in. Empty = isolated temp dir.
	WorkingDir string

	// Env adds extra environment variables on top of the sanitized base set.
	Env map[string]string

	// Timeout caps the command's wall-clock runtime. Zero = sandbox default.
	Timeout time.Duration

	// Limits overrides resource limits. Zero values = sandbox defaults.
	Limits ResourceLimits
}

// ResourceLimits constrains the sandboxed process.
type ResourceLimits struct {
	MaxCPUSeconds int // CPU time limit (ulimit -t).
	MaxMemoryMB   int // Virtual memory limit in MB (ulimit -v).
}

// ExecutionResult captures the outcome of a sandboxed command.
//
// A timeout is a result, not an error: TimedOut is set and Stdout/Stderr hold
// whatever the process produced before it was killed. Errors are reserved for
// failures to start the process at all.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}
