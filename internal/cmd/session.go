package cmd

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/config"
	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

var (
	metricsOnce sync.Once
	metrics     *lsf.Metrics
)

// driverMetrics registers the driver collectors once per process.
func driverMetrics() *lsf.Metrics {
	metricsOnce.Do(func() {
		metrics = lsf.NewMetrics(observability.InitMetrics())
	})
	return metrics
}

// session bundles the driver and the job registry for one command.
type session struct {
	driver  *lsf.Driver
	tracker *jobregistry.Tracker
}

func (s *session) Close() {
	if s == nil || s.driver == nil {
		return
	}
	if err := s.driver.Close(); err != nil {
		observability.CLILogger.Warn("Driver cleanup failed", zap.Error(err))
	}
}

// openSession builds a driver from cfg. The direct strategy needs the batch
// API client, which only exists in builds with the drmaa tag.
func openSession(cfg *config.Config) (*session, error) {
	if cfg == nil {
		return nil, exitError(ExitConfiguration, "Configuration not loaded", fmt.Errorf("no configuration"))
	}
	logger := observability.CLILogger

	opts := []lsf.DriverOption{lsf.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		opts = append(opts, lsf.WithMetrics(driverMetrics()))
	}
	if client := directClient(logger); client != nil {
		opts = append(opts, lsf.WithClient(client))
	}

	d, err := lsf.New(cfg.DriverConfig(), opts...)
	if err != nil {
		return nil, driverExitError("Failed to initialize batch driver", err)
	}
	store := jobregistry.NewStore(cfg.JobsDir)
	return &session{driver: d, tracker: jobregistry.NewTracker(store, d, logger)}, nil
}
