// Package lsftest provides in-memory fakes for testing code built on the lsf
// package.
package lsftest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/lsfq/pkg/runner"
)

// Call records one Runner invocation.
type Call struct {
	Binary string
	Args   []string
}

// CommandLine returns the binary and its arguments joined by spaces.
func (c Call) CommandLine() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Response scripts the outcome of one invocation.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Err makes Run fail as if the process could not be started.
	Err error
	// Delay holds Run until it elapses or ctx ends.
	Delay time.Duration
}

// Runner is a scripted runner.Runner. It is safe for concurrent use.
type Runner struct {
	// Handler decides the response for each call. A nil Handler answers
	// every call with an empty successful response.
	Handler func(Call) Response

	mu    sync.Mutex
	calls []Call
}

var _ runner.Runner = (*Runner)(nil)

// Run implements runner.Runner.
func (r *Runner) Run(ctx context.Context, binary string, args []string, captureStdoutTo string, timeout time.Duration) (int, error) {
	call := Call{Binary: binary, Args: append([]string(nil), args...)}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	handler := r.Handler
	r.mu.Unlock()

	var resp Response
	if handler != nil {
		resp = handler(call)
	}

	if captureStdoutTo != "" {
		if err := os.WriteFile(captureStdoutTo, []byte(resp.Stdout), 0o600); err != nil {
			return -1, fmt.Errorf("write capture: %w", err)
		}
	}

	if resp.Delay > 0 {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return -1, fmt.Errorf("run %s: %w", binary, ctx.Err())
		}
	}

	if resp.Err != nil {
		return -1, resp.Err
	}
	if resp.ExitCode != 0 {
		return resp.ExitCode, &runner.ExitError{Binary: binary, Args: call.Args, ExitCode: resp.ExitCode, Stderr: resp.Stderr}
	}
	return 0, nil
}

// Calls returns all recorded invocations.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many invocations had a command line containing substr.
func (r *Runner) Count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if strings.Contains(c.CommandLine(), substr) {
			n++
		}
	}
	return n
}

// Reset clears recorded invocations.
func (r *Runner) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
