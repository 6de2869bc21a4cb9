package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestExecRunner_CapturesStdout(t *testing.T) {
	skipWithoutShell(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	r := NewExecRunner(nil)
	code, err := r.Run(context.Background(), "/bin/sh", []string{"-c", "echo 'Job <55012> is submitted'"}, out, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Job <55012> is submitted\n", string(data))
}

func TestExecRunner_ArgumentsAreNotShellInterpreted(t *testing.T) {
	skipWithoutShell(t)
	out := filepath.Join(t.TempDir(), "out.txt")

	r := NewExecRunner(nil)
	_, err := r.Run(context.Background(), "/bin/echo", []string{"span[hosts=1]", "$HOME", "a b"}, out, 5*time.Second)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "span[hosts=1] $HOME a b\n", string(data))
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	skipWithoutShell(t)

	r := NewExecRunner(nil)
	code, err := r.Run(context.Background(), "/bin/sh", []string{"-c", "echo 'queue closed' >&2; exit 3"}, "", 5*time.Second)
	require.Error(t, err)
	assert.Equal(t, 3, code)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Equal(t, "/bin/sh", exitErr.Binary)
	assert.Contains(t, exitErr.Stderr, "queue closed")
	assert.Contains(t, StderrOf(err), "queue closed")
}

func TestExecRunner_StartFailure(t *testing.T) {
	r := NewExecRunner(nil)
	code, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "no-such-binary"), nil, "", time.Second)
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.Empty(t, StderrOf(err))
}

func TestExecRunner_EmptyBinary(t *testing.T) {
	r := NewExecRunner(nil)
	code, err := r.Run(context.Background(), "  ", nil, "", time.Second)
	require.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestExecRunner_Timeout(t *testing.T) {
	skipWithoutShell(t)

	r := NewExecRunner(nil)
	start := time.Now()
	code, err := r.Run(context.Background(), "/bin/sh", []string{"-c", "sleep 10"}, "", 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecRunner_Cancelled(t *testing.T) {
	skipWithoutShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := NewExecRunner(nil)
	code, err := r.Run(ctx, "/bin/sh", []string{"-c", "sleep 10"}, "", 0)
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestExecRunner_UnsetsEnvironment(t *testing.T) {
	skipWithoutShell(t)
	t.Setenv("BSUB_QUIET", "1")
	t.Setenv("LSFQ_RUNNER_KEEP", "kept")
	out := filepath.Join(t.TempDir(), "env.txt")

	r := NewExecRunner(nil, "BSUB_QUIET")
	_, err := r.Run(context.Background(), "/bin/sh", []string{"-c", "echo \"quiet=${BSUB_QUIET:-unset} keep=$LSFQ_RUNNER_KEEP\""}, out, 5*time.Second)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "quiet=unset keep=kept", strings.TrimSpace(string(data)))
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	b := &tailBuffer{limit: 8}
	_, _ = b.Write([]byte("0123456789"))
	_, _ = b.Write([]byte("ab"))
	assert.Equal(t, "456789ab", b.String())
}

func TestTempFile(t *testing.T) {
	dir := t.TempDir()
	path, err := TempFile(dir, "lsfq-*.out")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
