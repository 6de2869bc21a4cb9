// Package runner executes external commands for the batch driver.
//
// Commands are spawned directly (never through a local shell) with standard
// output redirected into a capture file. Standard error is kept in memory so
// failures can be reported without re-running anything.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// stderrTailLimit bounds how much standard error is retained per invocation.
const stderrTailLimit = 4096

// Runner runs one external command to completion.
//
// exitCode is -1 when the process could not be started or was terminated
// because ctx was cancelled or timeout elapsed.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, captureStdoutTo string, timeout time.Duration) (exitCode int, err error)
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Binary   string
	Args     []string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Binary, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// StderrOf returns the captured standard error carried by err, if any.
func StderrOf(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Stderr
	}
	return ""
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	// Unset lists environment variables removed from the child environment.
	Unset []string

	// WaitDelay bounds how long Run waits for I/O to drain after the process
	// has been killed. Default: 2s
	WaitDelay time.Duration

	logger *zap.Logger
}

// NewExecRunner creates a runner logging through logger (nil for no logging).
func NewExecRunner(logger *zap.Logger, unset ...string) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{
		Unset:     unset,
		WaitDelay: 2 * time.Second,
		logger:    logger,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, binary string, args []string, captureStdoutTo string, timeout time.Duration) (int, error) {
	if strings.TrimSpace(binary) == "" {
		return -1, fmt.Errorf("binary is required")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout io.Writer = io.Discard
	if captureStdoutTo != "" {
		f, err := os.Create(captureStdoutTo)
		if err != nil {
			return -1, fmt.Errorf("create stdout capture: %w", err)
		}
		defer func() { _ = f.Close() }()
		stdout = f
	}

	stderr := &tailBuffer{limit: stderrTailLimit}

	cmd := exec.CommandContext(ctx, binary, args...) // #nosec G204
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = r.environ()
	cmd.WaitDelay = r.WaitDelay

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Debug("Command terminated",
			zap.String("binary", binary),
			zap.Strings("args", args),
			zap.Duration("duration", elapsed),
			zap.Error(ctxErr))
		return -1, fmt.Errorf("run %s: %w", binary, ctxErr)
	}

	if err != nil {
		var execExit *exec.ExitError
		if errors.As(err, &execExit) {
			code := execExit.ExitCode()
			r.logger.Debug("Command failed",
				zap.String("binary", binary),
				zap.Strings("args", args),
				zap.Int("exit_code", code),
				zap.Duration("duration", elapsed))
			return code, &ExitError{
				Binary:   binary,
				Args:     append([]string(nil), args...),
				ExitCode: code,
				Stderr:   stderr.String(),
			}
		}
		return -1, fmt.Errorf("start %s: %w", binary, err)
	}

	r.logger.Debug("Command completed",
		zap.String("binary", binary),
		zap.Strings("args", args),
		zap.Int("exit_code", 0),
		zap.Duration("duration", elapsed))
	return 0, nil
}

func (r *ExecRunner) environ() []string {
	env := os.Environ()
	if len(r.Unset) == 0 {
		return env
	}
	out := env[:0:0]
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, u := range r.Unset {
			if name == u {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}

// TempFile allocates an empty capture file and returns its path.
// The caller owns the file and must remove it.
func TempFile(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return name, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
