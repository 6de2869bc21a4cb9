package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/internal/server"
	"github.com/3leaps/lsfq/internal/server/handlers"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve job status, health and metrics over HTTP",
	Long: `Run an HTTP server exposing the recorded jobs and the driver's health and
metrics. Unfinished jobs are refreshed in the background every refresh
interval.

Endpoints:
  GET /health, /health/live, /health/ready, /health/startup
  GET /version
  GET /metrics            (when metrics.enabled)
  GET /jobs[?refresh=true]
  GET /jobs/{id}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default: server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: server.port)")
}

// batchSystemHealthChecker reports the outcome of the last status listing.
type batchSystemHealthChecker struct {
	driver interface{ LastError() error }
}

func (c batchSystemHealthChecker) CheckHealth(_ context.Context) error {
	return c.driver.LastError()
}

// jobsStoreHealthChecker verifies the record directory is usable.
type jobsStoreHealthChecker struct {
	dir string
}

func (c jobsStoreHealthChecker) CheckHealth(_ context.Context) error {
	if c.dir == "" {
		return fmt.Errorf("jobs directory not configured")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("jobs directory unavailable: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	logger := observability.CLILogger

	host := cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	if port <= 0 {
		return exitError(ExitInvalidArgument, "No listen port", fmt.Errorf("set --port or server.port"))
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("batch_system", batchSystemHealthChecker{driver: s.driver})
	health.RegisterChecker("jobs_store", jobsStoreHealthChecker{dir: cfg.JobsDir})

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithTracker(s.tracker),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetricsRegistry(observability.InitMetrics()))
	}
	srv := server.New(host, port, opts...)

	go refreshLoop(ctx, s.tracker, cfg.Driver.RefreshInterval, logger)

	if err := srv.Start(ctx); err != nil {
		return exitError(ExitFailure, "HTTP server failed", err)
	}
	return nil
}

func refreshLoop(ctx context.Context, tracker *jobregistry.Tracker, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := tracker.RefreshAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if lsf.IsTransientQuery(err) {
				logger.Warn("Background status refresh failed", zap.Error(err))
			} else {
				logger.Error("Background status refresh failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
