package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// isolate points HOME and XDG dirs at a temp dir so a developer's own
// lsfq.yaml never leaks into tests.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	SetConfigFile("")
	return home
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		home := isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Driver defaults
		assert.Empty(t, cfg.Driver.RemoteServer)
		assert.Equal(t, "/usr/bin/ssh", cfg.Driver.RemoteShellBinary)
		assert.Equal(t, "bsub", cfg.Driver.SubmitCmd)
		assert.Equal(t, "bjobs", cfg.Driver.StatusCmd)
		assert.Equal(t, "bkill", cfg.Driver.KillCmd)
		assert.Equal(t, 10*time.Second, cfg.Driver.RefreshInterval)
		assert.Equal(t, 2*time.Minute, cfg.Driver.CommandTimeout)
		assert.Equal(t, 1024, cfg.Driver.DetailsCacheSize)
		assert.Zero(t, cfg.Driver.SubmitRate)

		// Server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 0, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, filepath.Join(home, ".local", "state", "lsfq", "jobs"), cfg.JobsDir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"driver": map[string]any{
				"remote_server": "cluster1",
				"queue":         "normal",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "cluster1", cfg.Driver.RemoteServer)
		assert.Equal(t, "normal", cfg.Driver.Queue)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "bsub", cfg.Driver.SubmitCmd)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("LSFQ_REMOTE_SERVER", "login01")
		t.Setenv("LSFQ_LOG_LEVEL", "warn")
		t.Setenv("LSFQ_METRICS_ENABLED", "false")
		t.Setenv("LSFQ_SUBMIT_RATE", "2.5")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "login01", cfg.Driver.RemoteServer)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 2.5, cfg.Driver.SubmitRate)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		t.Setenv("LSFQ_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "lsfq.yaml")
		require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
			"driver:",
			"  remote_server: local",
			"  refresh_interval: 30s",
			"  resource_request: \"select[mem>1000]\"",
			"logging:",
			"  level: error",
		}, "\n")), 0o600))
		SetConfigFile(path)
		defer SetConfigFile("")
		t.Setenv("LSFQ_LOG_LEVEL", "debug")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "local", cfg.Driver.RemoteServer)
		assert.Equal(t, 30*time.Second, cfg.Driver.RefreshInterval)
		assert.Equal(t, "select[mem>1000]", cfg.Driver.ResourceRequest)
		assert.Equal(t, "debug", cfg.Logging.Level, "env wins over file")
	})

	t.Run("MissingPinnedFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		defer SetConfigFile("")

		_, err := Load(ctx)
		require.Error(t, err)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		isolate(t)
		_, err := Load(ctx, map[string]any{"logging": map[string]any{"level": "chatty"}})
		require.Error(t, err)

		_, err = Load(ctx, map[string]any{"driver": map[string]any{"refresh_interval": "0s"}})
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{"driver": map[string]any{"queue": "short"}})
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Driver.Queue, retrieved.Driver.Queue)
}

func TestEnvSpecs(t *testing.T) {
	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]string)
	for _, spec := range specs {
		assert.True(t, strings.HasPrefix(spec.Name, "LSFQ_"), spec.Name)
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
		names[spec.Name] = spec.Path
	}
	assert.Equal(t, "driver.remote_server", names["LSFQ_REMOTE_SERVER"])
	assert.Equal(t, "logging.level", names["LSFQ_LOG_LEVEL"])
	assert.Equal(t, "server.port", names["LSFQ_PORT"])
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("LSFQ_REFRESH_INTERVAL", "45s")
	t.Setenv("LSFQ_COMMAND_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Driver.RefreshInterval)
	assert.Equal(t, 5*time.Minute, cfg.Driver.CommandTimeout)
}

func TestDriverConfig(t *testing.T) {
	isolate(t)
	cfg, err := Load(context.Background(), map[string]any{
		"driver": map[string]any{"remote_server": "cluster1", "login_shell": "/bin/bash", "submit_rate": 1.5},
	})
	require.NoError(t, err)

	dc := cfg.DriverConfig()
	assert.Equal(t, "cluster1", dc.Options[lsf.OptionRemoteServer])
	assert.Equal(t, "/bin/bash", dc.Options[lsf.OptionLoginShell])
	assert.Equal(t, "/usr/bin/ssh", dc.Options[lsf.OptionRemoteShellBinary])
	assert.Equal(t, 10*time.Second, dc.RefreshInterval)
	assert.Equal(t, 1.5, dc.SubmitRate)
	assert.Equal(t, 1024, dc.DetailCacheSize)

	for name := range dc.Options {
		assert.Contains(t, lsf.OptionNames(), name)
	}
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": map[string]any{"e": true}},
	})
	assert.Equal(t, map[string]any{"a": 1, "b.c": "x", "b.d.e": true}, got)
}
