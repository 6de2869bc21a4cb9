// Package cmd implements the lsfq command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/config"
	"github.com/3leaps/lsfq/internal/observability"
)

// VersionInfo describes the build.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

var versionInfo = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}

// SetVersionInfo records build metadata injected through ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile      string
	verbose      bool
	jsonOutput   bool
	yamlOutput   bool
	remoteServer string
	queue        string
	jobsDir      string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lsfq",
	Short: "Submit and track jobs on an LSF batch cluster",
	Long: `lsfq submits long-running jobs to an LSF-style batch scheduler and tracks
them until they finish.

Jobs are submitted either through the in-process batch API (remote server
unset) or by running bsub/bjobs/bkill on a login node over ssh. Every job
submitted through lsfq is recorded locally, so later invocations can report
its status, wait for it, or kill it.

Examples:
  lsfq submit --cpus 4 --name sim -- /opt/sim/run.sh --steps 1000
  lsfq status 55012
  lsfq watch
  lsfq --remote-server login01 jobs list --refresh`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./lsfq.yaml, ~/.config/lsfq/lsfq.yaml, /etc/lsfq/lsfq.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	pf.BoolVar(&yamlOutput, "yaml", false, "Output as YAML")
	pf.StringVar(&remoteServer, "remote-server", "", "Login node for the shell strategy ('local' runs commands here)")
	pf.StringVar(&queue, "queue", "", "Batch queue")
	pf.StringVar(&jobsDir, "jobs-dir", "", "Directory holding job records")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if jsonOutput && yamlOutput {
		return exitError(ExitInvalidArgument, "Invalid flags", fmt.Errorf("--json and --yaml are mutually exclusive"))
	}

	config.SetConfigFile(cfgFile)
	overrides := map[string]any{}
	driver := map[string]any{}
	if cmd.Flags().Changed("remote-server") {
		driver["remote_server"] = remoteServer
	}
	if cmd.Flags().Changed("queue") {
		driver["queue"] = queue
	}
	if len(driver) > 0 {
		overrides["driver"] = driver
	}
	if strings.TrimSpace(jobsDir) != "" {
		overrides["jobs_dir"] = jobsDir
	}

	cfg, err := config.Load(commandContext(cmd), overrides)
	if err != nil {
		return exitError(ExitConfiguration, "Failed to load configuration", err)
	}
	appConfig = cfg

	observability.InitLogger("lsfq", verbose, cfg.Logging.Level, cfg.Logging.Format)
	observability.CLILogger.Debug("Configuration loaded",
		zap.String("remote_server", cfg.Driver.RemoteServer),
		zap.String("jobs_dir", cfg.JobsDir))
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return ExitCode(err)
}
