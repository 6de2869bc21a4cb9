// Package config loads lsfq configuration.
//
// Precedence (lowest to highest): built-in defaults, lsfq.yaml, LSFQ_*
// environment variables, runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/lsfq/pkg/lsf"
)

const (
	appName        = "lsfq"
	envPrefix      = "LSFQ_"
	configFileName = "lsfq"
)

// Config is the full application configuration.
type Config struct {
	Driver  DriverConfig  `mapstructure:"driver" yaml:"driver" json:"driver"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	JobsDir string        `mapstructure:"jobs_dir" yaml:"jobs_dir" json:"jobs_dir"`
}

// DriverConfig configures the batch driver.
type DriverConfig struct {
	Queue             string        `mapstructure:"queue" yaml:"queue" json:"queue"`
	ResourceRequest   string        `mapstructure:"resource_request" yaml:"resource_request" json:"resource_request"`
	LoginShell        string        `mapstructure:"login_shell" yaml:"login_shell" json:"login_shell"`
	RemoteServer      string        `mapstructure:"remote_server" yaml:"remote_server" json:"remote_server"`
	RemoteShellBinary string        `mapstructure:"remote_shell_binary" yaml:"remote_shell_binary" json:"remote_shell_binary"`
	SubmitCmd         string        `mapstructure:"submit_cmd" yaml:"submit_cmd" json:"submit_cmd"`
	StatusCmd         string        `mapstructure:"status_cmd" yaml:"status_cmd" json:"status_cmd"`
	KillCmd           string        `mapstructure:"kill_cmd" yaml:"kill_cmd" json:"kill_cmd"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval" json:"refresh_interval"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout" yaml:"command_timeout" json:"command_timeout"`
	SubmitRate        float64       `mapstructure:"submit_rate" yaml:"submit_rate" json:"submit_rate"`
	TempDir           string        `mapstructure:"temp_dir" yaml:"temp_dir" json:"temp_dir"`
	DetailsCacheSize  int           `mapstructure:"details_cache_size" yaml:"details_cache_size" json:"details_cache_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// ServerConfig configures the optional HTTP surface. Port 0 disables it.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// EnvSpec maps one environment variable to a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu   sync.RWMutex
	appConfig  *Config
	configFile string
)

// SetConfigFile pins the config file used by Load. Empty restores search.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// GetConfig returns the most recently loaded config, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Load builds the configuration. Each override map is applied on top of
// everything else, later maps winning.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.RLock()
	file := configFile
	configMu.RUnlock()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(".")
		for _, p := range getUserConfigPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := lsf.DefaultConfig()
	v.SetDefault("driver.queue", "")
	v.SetDefault("driver.resource_request", "")
	v.SetDefault("driver.login_shell", "")
	v.SetDefault("driver.remote_server", "")
	v.SetDefault("driver.remote_shell_binary", lsf.DefaultRemoteShell)
	v.SetDefault("driver.submit_cmd", lsf.DefaultSubmitCmd)
	v.SetDefault("driver.status_cmd", lsf.DefaultStatusCmd)
	v.SetDefault("driver.kill_cmd", lsf.DefaultKillCmd)
	v.SetDefault("driver.refresh_interval", def.RefreshInterval)
	v.SetDefault("driver.command_timeout", def.CommandTimeout)
	v.SetDefault("driver.submit_rate", def.SubmitRate)
	v.SetDefault("driver.temp_dir", "")
	v.SetDefault("driver.details_cache_size", def.DetailCacheSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("jobs_dir", defaultJobsDir())
}

func defaultJobsDir() string {
	if state := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); state != "" {
		return filepath.Join(state, appName, "jobs")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), appName, "jobs")
	}
	return filepath.Join(home, ".local", "state", appName, "jobs")
}

func getUserConfigPaths() []string {
	var paths []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		paths = append(paths, filepath.Join(xdg, appName))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", appName))
	}
	return append(paths, filepath.Join("/etc", appName))
}

func getEnvSpecs() []EnvSpec {
	specs := []struct{ suffix, path string }{
		{"QUEUE", "driver.queue"},
		{"RESOURCE_REQUEST", "driver.resource_request"},
		{"LOGIN_SHELL", "driver.login_shell"},
		{"REMOTE_SERVER", "driver.remote_server"},
		{"REMOTE_SHELL", "driver.remote_shell_binary"},
		{"SUBMIT_CMD", "driver.submit_cmd"},
		{"STATUS_CMD", "driver.status_cmd"},
		{"KILL_CMD", "driver.kill_cmd"},
		{"REFRESH_INTERVAL", "driver.refresh_interval"},
		{"COMMAND_TIMEOUT", "driver.command_timeout"},
		{"SUBMIT_RATE", "driver.submit_rate"},
		{"TEMP_DIR", "driver.temp_dir"},
		{"DETAILS_CACHE_SIZE", "driver.details_cache_size"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},
		{"HOST", "server.host"},
		{"PORT", "server.port"},
		{"READ_TIMEOUT", "server.read_timeout"},
		{"WRITE_TIMEOUT", "server.write_timeout"},
		{"IDLE_TIMEOUT", "server.idle_timeout"},
		{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
		{"METRICS_ENABLED", "metrics.enabled"},
		{"JOBS_DIR", "jobs_dir"},
	}
	out := make([]EnvSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, EnvSpec{Name: envPrefix + s.suffix, Path: s.path})
	}
	return out
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Driver.RefreshInterval <= 0 {
		return fmt.Errorf("driver.refresh_interval must be positive")
	}
	if c.Driver.CommandTimeout <= 0 {
		return fmt.Errorf("driver.command_timeout must be positive")
	}
	if c.Driver.SubmitRate < 0 {
		return fmt.Errorf("driver.submit_rate must not be negative")
	}
	return nil
}

// DriverConfig converts the driver section into an lsf.Config.
func (c *Config) DriverConfig() lsf.Config {
	d := c.Driver
	return lsf.Config{
		Options: map[string]string{
			lsf.OptionQueue:             d.Queue,
			lsf.OptionResourceRequest:   d.ResourceRequest,
			lsf.OptionLoginShell:        d.LoginShell,
			lsf.OptionRemoteServer:      d.RemoteServer,
			lsf.OptionRemoteShellBinary: d.RemoteShellBinary,
			lsf.OptionSubmitCmd:         d.SubmitCmd,
			lsf.OptionStatusCmd:         d.StatusCmd,
			lsf.OptionKillCmd:           d.KillCmd,
		},
		RefreshInterval: d.RefreshInterval,
		CommandTimeout:  d.CommandTimeout,
		SubmitRate:      d.SubmitRate,
		TempDir:         d.TempDir,
		DetailCacheSize: d.DetailsCacheSize,
	}
}
