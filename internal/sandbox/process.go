package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout    = 30 * time.Second
	defaultKillGrace  = 2 * time.Second
	defaultCPUSeconds = 60
	defaultMemoryMB   = 512
)

// ProcessConfig configures the process-based sandbox.
type ProcessConfig struct {
	DefaultTimeout time.Duration
	// KillGrace is how long a timed-out process group gets between SIGTERM
	// and SIGKILL.
	KillGrace     time.Duration
	DefaultLimits ResourceLimits
}

// ProcessSandbox executes commands as isolated OS processes.
//
// Security guarantees:
//   - Process runs in its own process group (Setpgid)
//   - Entire process group terminated on timeout/cancel, SIGTERM first
//     then SIGKILL after a grace period
//   - No environment inheritance from parent — only a minimal safe set
//   - Resource limits enforced via ulimit
//   - stdout/stderr capped to prevent OOM
type ProcessSandbox struct {
	defaultTimeout time.Duration
	killGrace      time.Duration
	defaultLimits  ResourceLimits
	logger         *slog.Logger
}

// NewProcessSandbox creates a process-based sandbox.
func NewProcessSandbox(cfg ProcessConfig, logger *slog.Logger) *ProcessSandbox {
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	grace := cfg.KillGrace
	if grace == 0 {
		grace = defaultKillGrace
	}

	limits := cfg.DefaultLimits
	if limits.MaxCPUSeconds == 0 {
		limits.MaxCPUSeconds = defaultCPUSeconds
	}
	if limits.MaxMemoryMB == 0 {
		limits.MaxMemoryMB = defaultMemoryMB
	}

	return &ProcessSandbox{
		defaultTimeout: timeout,
		killGrace:      grace,
		defaultLimits:  limits,
		logger:         logger,
	}
}

// Execute runs a command in an isolated process environment.
//
// The returned error is non-nil only when the process could not be started.
// Timeouts and non-zero exit codes are reported through the result.
func (s *ProcessSandbox) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir := req.WorkingDir
	var tmpDir string
	if workDir == "" {
		var err error
		tmpDir, err = os.MkdirTemp("", "kazi-sandbox-*")
		if err != nil {
			return nil, fmt.Errorf("creating sandbox temp dir: %w", err)
		}
		workDir = tmpDir
		defer func() {
			if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
				s.logger.Warn("failed to remove sandbox temp dir",
					slog.String("dir", tmpDir),
					slog.String("error", rmErr.Error()),
				)
			}
		}()
	}

	limits := s.resolveLimits(req.Limits)

	// The command is wrapped:
	//   sh -c 'ulimit -v KB 2>/dev/null; ulimit -t SEC 2>/dev/null; exec "$@"' _ cmd args...
	//
	// Using exec "$@" with positional parameters prevents shell injection —
	// the user's command is never interpolated into the shell string, and
	// exec preserves the command's own exit code.
	memKB := limits.MaxMemoryMB * 1024
	shellScript := fmt.Sprintf(
		"ulimit -v %d 2>/dev/null; ulimit -t %d 2>/dev/null; exec \"$@\"",
		memKB, limits.MaxCPUSeconds,
	)
	args := make([]string, 0, 3+len(req.Command))
	args = append(args, "-c", shellScript, "_") // "_" is the $0 placeholder
	args = append(args, req.Command...)

	cmd := exec.CommandContext(runCtx, "/bin/sh", args...)
	cmd.Dir = workDir

	// Process group isolation — the child runs in its own group so the
	// whole tree can be signalled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	// On timeout/cancel, ask the process group to stop and escalate to
	// SIGKILL after the grace period. Negative PID = entire group.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := cmd.Process.Pid
		time.AfterFunc(s.killGrace, func() {
			_ = syscall.Kill(-pgid, syscall.SIGKILL)
		})
		return syscall.Kill(-pgid, syscall.SIGTERM)
	}
	// Backstop: if orphaned grandchildren hold the output pipes open past
	// the SIGKILL, stop waiting on them.
	cmd.WaitDelay = s.killGrace + time.Second

	// Sanitized environment — NO inheritance from the host process.
	cmd.Env = s.buildEnv(workDir, req.Env)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	s.logger.Info("sandbox executing",
		slog.Any("command", req.Command),
		slog.String("dir", cmd.Dir),
		slog.Int("memory_limit_mb", limits.MaxMemoryMB),
		slog.Int("cpu_limit_sec", limits.MaxCPUSeconds),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting command: %w", err)
	}
	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &ExecutionResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}

	if runCtx.Err() != nil {
		// Killed by deadline or caller cancellation. Partial output stands.
		result.TimedOut = true
		result.ExitCode = -1
		s.logger.Warn("sandbox execution timed out",
			slog.Duration("timeout", timeout),
			slog.Duration("duration", duration),
		)
		return result, nil
	}

	if waitErr != nil {
		// Non-zero exit code is not an error — it's a result.
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execution failed: %w", waitErr)
		}
	}

	s.logger.Info("sandbox execution completed",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)
	return result, nil
}

// resolveLimits merges request-level overrides with sandbox defaults.
func (s *ProcessSandbox) resolveLimits(req ResourceLimits) ResourceLimits {
	limits := s.defaultLimits
	if req.MaxCPUSeconds > 0 {
		limits.MaxCPUSeconds = req.MaxCPUSeconds
	}
	if req.MaxMemoryMB > 0 {
		limits.MaxMemoryMB = req.MaxMemoryMB
	}
	return limits
}

// buildEnv constructs a minimal, safe environment.
// The parent process's environment is NEVER inherited — this prevents
// API keys, credentials, and other secrets from leaking into sandboxed commands.
func (s *ProcessSandbox) buildEnv(workDir string, extra map[string]string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + workDir,
		"TMPDIR=" + os.TempDir(),
		"LANG=en_US.UTF-8",
		"TERM=dumb",
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // Silently discard.
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}
