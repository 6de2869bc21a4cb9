// Package clustertest provides helpers for integration tests against a real
// LSF login node.
//
// Tests using this package should be tagged with //go:build clusterintegration
// and point LSFQ_TEST_SERVER at a host reachable with non-interactive ssh.
//
// Usage:
//
//	func TestAgainstCluster(t *testing.T) {
//	    clustertest.SkipIfUnavailable(t)
//	    d := clustertest.Driver(t)
//	    // ... test code ...
//	}
package clustertest

import (
	"context"
	"os"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/runner"
)

const (
	// DefaultWorkDir is the cluster-side directory for test job output.
	DefaultWorkDir = "/tmp"

	probeTimeout = 15 * time.Second
)

var (
	// Server is the login node, configurable via LSFQ_TEST_SERVER.
	Server = os.Getenv("LSFQ_TEST_SERVER")

	// Queue is the queue test jobs go to, configurable via LSFQ_TEST_QUEUE.
	Queue = os.Getenv("LSFQ_TEST_QUEUE")

	// WorkDir is where test jobs write their batch output, configurable via
	// LSFQ_TEST_WORKDIR.
	WorkDir = getEnvOrDefault("LSFQ_TEST_WORKDIR", DefaultWorkDir)

	availableOnce sync.Once
	available     bool
)

func getEnvOrDefault(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// Available reports whether Server answers a bjobs probe over ssh. The
// result is cached for the test binary.
func Available() bool {
	availableOnce.Do(func() {
		if strings.TrimSpace(Server) == "" {
			return
		}
		r := runner.NewExecRunner(zap.NewNop())
		code, err := r.Run(context.Background(), lsf.DefaultRemoteShell,
			[]string{"-o", "BatchMode=yes", Server, lsf.DefaultStatusCmd + " -V"}, "", probeTimeout)
		available = err == nil && code == 0
	})
	return available
}

// SkipIfUnavailable skips the test if no cluster is reachable.
func SkipIfUnavailable(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skip("no LSF login node available (set LSFQ_TEST_SERVER)")
	}
}

// Driver returns a shell-strategy driver for Server with a short refresh
// interval, closed when the test ends.
func Driver(t *testing.T) *lsf.Driver {
	t.Helper()
	cfg := lsf.DefaultConfig()
	cfg.RefreshInterval = 2 * time.Second
	cfg.TempDir = t.TempDir()
	cfg.Options = map[string]string{
		lsf.OptionRemoteServer: Server,
		lsf.OptionQueue:        Queue,
	}
	d, err := lsf.New(cfg, lsf.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("failed to create driver: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Logf("warning: driver cleanup: %v", err)
		}
	})
	return d
}

// JobName returns a batch job name unique to the running test.
func JobName(t *testing.T) string {
	name := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	if len(name) > 40 {
		name = name[:40]
	}
	return "lsfq-" + name + "-" + time.Now().Format("150405")
}

// OutputPath returns where the batch system writes output for name.
func OutputPath(name string) string {
	return path.Join(WorkDir, name+".LSF-stdout")
}

// WaitForStatus polls d until h reaches one of want or timeout elapses, and
// returns the last status seen.
func WaitForStatus(t *testing.T, d *lsf.Driver, h lsf.JobHandle, timeout time.Duration, want ...lsf.JobStatus) lsf.JobStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var last lsf.JobStatus
	for {
		s, err := d.Status(ctx, h)
		if err != nil {
			t.Logf("status query failed: %v", err)
		}
		last = s
		for _, w := range want {
			if s == w {
				return s
			}
		}
		select {
		case <-ctx.Done():
			return last
		case <-time.After(time.Second):
		}
	}
}
