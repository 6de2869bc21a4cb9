// Package lsf submits jobs to an LSF-style batch system and tracks them.
//
// A Driver talks to the batch system either in-process through a Client
// (direct mode) or by running the batch command line tools, locally or
// through a remote shell. Statuses come from a shared cache that is refreshed
// from one bulk listing at most once per refresh interval.
package lsf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/lsfq/pkg/runner"
)

// orphanKillAttempts bounds the kills of a job left behind by a failed submit.
const orphanKillAttempts = 3

// Config configures a Driver.
type Config struct {
	// Options seeds the option store. Unknown names fail New.
	Options map[string]string

	// RefreshInterval is the minimum time between bulk status listings.
	// Default: 10s
	RefreshInterval time.Duration

	// CommandTimeout bounds every external command.
	// Default: 2m
	CommandTimeout time.Duration

	// SubmitRate is the maximum submissions per second.
	// Zero means unlimited.
	SubmitRate float64

	// TempDir is where command output is captured. Empty uses os.TempDir.
	TempDir string

	// DetailCacheSize is the number of execution host lists kept in memory.
	// Default: 1024
	DetailCacheSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: DefaultRefreshInterval,
		CommandTimeout:  2 * time.Minute,
		SubmitRate:      0,
		DetailCacheSize: 1024,
	}
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithLogger sets the logger. Default: no logging.
func WithLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRunner sets the command runner used by the shell strategy.
func WithRunner(r runner.Runner) DriverOption {
	return func(d *Driver) { d.runner = r }
}

// WithClient sets the in-process client used when remoteServer is empty.
func WithClient(c Client) DriverOption {
	return func(d *Driver) { d.client = c }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) DriverOption {
	return func(d *Driver) { d.metrics = m }
}

// WithClock sets the clock used for cache staleness.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// Driver is the job driver façade. It is safe for concurrent use.
type Driver struct {
	cfg     Config
	opts    *Options
	cache   *StatusCache
	runner  runner.Runner
	client  Client
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	direct *directStrategy
	shell  *shellStrategy

	stratMu sync.RWMutex
	strat   strategy

	// submitSem serializes submissions.
	submitSem chan struct{}
	limiter   *rate.Limiter
	hosts     *lru.Cache
	workDir   string
}

// New creates a driver. When remoteServer is empty a Client must be supplied
// and ready; otherwise New fails with a configuration error.
func New(cfg Config, opts ...DriverOption) (*Driver, error) {
	def := DefaultConfig()
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.DetailCacheSize <= 0 {
		cfg.DetailCacheSize = def.DetailCacheSize
	}

	d := &Driver{
		cfg:       cfg,
		opts:      NewOptions(),
		logger:    zap.NewNop(),
		now:       time.Now,
		submitSem: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(d)
	}
	if d.runner == nil {
		d.runner = runner.NewExecRunner(d.logger, "BSUB_QUIET")
	}
	for name, value := range cfg.Options {
		if err := d.opts.Set(name, value); err != nil {
			return nil, err
		}
	}
	if cfg.SubmitRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), 1)
	}

	hosts, err := lru.New(cfg.DetailCacheSize)
	if err != nil {
		return nil, configError("new", "detail cache: %v", err)
	}
	d.hosts = hosts
	d.cache = NewStatusCache(cfg.RefreshInterval, d.now)

	workDir, err := os.MkdirTemp(cfg.TempDir, "lsfq-")
	if err != nil {
		return nil, configError("new", "create capture directory: %v", err)
	}
	d.workDir = workDir
	d.shell = newShellStrategy(d.runner, workDir, cfg.CommandTimeout, d.logger)

	if d.client != nil {
		direct, err := newDirectStrategy(d.client, d.logger)
		if err != nil {
			_ = os.RemoveAll(workDir)
			return nil, err
		}
		d.direct = direct
	}

	strat, err := d.strategyFor(d.opts.Snapshot().Mode())
	if err != nil {
		_ = os.RemoveAll(workDir)
		return nil, err
	}
	d.strat = strat
	return d, nil
}

func (d *Driver) strategyFor(mode Mode) (strategy, error) {
	if mode != ModeDirect {
		return d.shell, nil
	}
	if d.direct == nil {
		return nil, configError("select strategy", "no batch client configured and remoteServer is not set")
	}
	return d.direct, nil
}

func (d *Driver) current() (strategy, OptionsSnapshot) {
	d.stratMu.RLock()
	defer d.stratMu.RUnlock()
	return d.strat, d.opts.Snapshot()
}

// Mode returns how batch commands currently reach the batch system.
func (d *Driver) Mode() Mode {
	return d.opts.Snapshot().Mode()
}

// SetOption validates and stores an option. Changing remoteServer switches
// the strategy; if the new strategy is unavailable the option is left
// unchanged.
func (d *Driver) SetOption(name, value string) error {
	d.stratMu.Lock()
	defer d.stratMu.Unlock()

	prev, err := d.opts.Get(name)
	if err != nil {
		return err
	}
	if err := d.opts.Set(name, value); err != nil {
		return err
	}
	if name != OptionRemoteServer {
		return nil
	}
	strat, err := d.strategyFor(d.opts.Snapshot().Mode())
	if err != nil {
		_ = d.opts.Set(name, prev)
		return err
	}
	if strat != d.strat {
		d.logger.Debug("Strategy changed", zap.String("strategy", strat.name()))
	}
	d.strat = strat
	return nil
}

// GetOption returns the value of an option.
func (d *Driver) GetOption(name string) (string, error) {
	return d.opts.Get(name)
}

// Options returns a copy of all option values.
func (d *Driver) Options() OptionsSnapshot {
	return d.opts.Snapshot()
}

// Submit submits command to the batch system. On failure the zero handle is
// returned and nothing is retained. An empty jobName defaults to the base
// name of command.
func (d *Driver) Submit(ctx context.Context, command string, cpuCount int, workDir string, jobName string, args []string) (JobHandle, error) {
	if strings.TrimSpace(command) == "" {
		return JobHandle{}, invalidArgument("submit", "command is required")
	}
	if cpuCount < 1 {
		return JobHandle{}, invalidArgument("submit", "cpu count must be at least 1, got %d", cpuCount)
	}
	if strings.TrimSpace(jobName) == "" {
		jobName = filepath.Base(command)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return JobHandle{}, &Error{Op: "submit", Kind: ErrSubmission, Err: err}
		}
	}

	select {
	case d.submitSem <- struct{}{}:
	case <-ctx.Done():
		return JobHandle{}, &Error{Op: "submit", Kind: ErrSubmission, Err: ctx.Err()}
	}

	strat, snap := d.current()
	req := &SubmitRequest{
		CommandLine:     strings.Join(append([]string{command}, args...), " "),
		Command:         command,
		Args:            append([]string(nil), args...),
		JobName:         jobName,
		CPUCount:        cpuCount,
		WorkDir:         workDir,
		OutputFile:      filepath.Join(workDir, jobName+lsfStdoutSuffix),
		Queue:           snap.get(OptionQueue),
		ResourceRequest: snap.get(OptionResourceRequest),
		LoginShell:      snap.get(OptionLoginShell),
	}
	submissionID := uuid.NewString()
	logger := d.logger.With(zap.String("submission_id", submissionID), zap.String("strategy", strat.name()))

	id, err := strat.submit(ctx, snap, req)
	<-d.submitSem
	d.metrics.observeSubmit(strat.name(), err)

	if err != nil {
		if id != "" {
			d.killOrphan(strat, snap, id, logger)
		}
		logger.Warn("Submission failed", zap.String("job_name", jobName), zap.Error(err))
		return JobHandle{}, err
	}

	d.cache.Register(id)
	d.metrics.setKnown(d.cache.Size())
	logger.Info("Job submitted",
		zap.String("job_id", id),
		zap.String("job_name", jobName),
		zap.Int("cpu_count", cpuCount))
	return NewJobHandle(id), nil
}

// killOrphan kills a job whose submission failed after the batch system
// assigned it an id.
func (d *Driver) killOrphan(strat strategy, snap OptionsSnapshot, id string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), orphanKillAttempts*d.cfg.CommandTimeout)
	defer cancel()

	err := retry.Do(
		func() error { return strat.kill(ctx, snap, id) },
		retry.Attempts(orphanKillAttempts),
		retry.Delay(200*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		logger.Error("Failed to kill job from failed submission", zap.String("job_id", id), zap.Error(err))
		return
	}
	logger.Info("Killed job from failed submission", zap.String("job_id", id))
}

// Status returns the status of h. Handles this driver never submitted report
// StatusNotActive. A known job missing from the listing reports
// StatusPending. If the last refresh failed, its error is returned with the
// last known status.
func (d *Driver) Status(ctx context.Context, h JobHandle) (JobStatus, error) {
	if h.IsZero() || !d.cache.Known(h.ExternalID()) {
		return StatusNotActive, nil
	}
	err := d.refresh(ctx, false)
	if s, ok := d.cache.Lookup(h.ExternalID()); ok {
		return s, err
	}
	return StatusPending, err
}

// ForceRefresh lists the batch system now, ignoring the refresh interval.
func (d *Driver) ForceRefresh(ctx context.Context) error {
	return d.refresh(ctx, true)
}

func (d *Driver) refresh(ctx context.Context, force bool) error {
	strat, snap := d.current()
	start := time.Now()
	refreshed, err := d.cache.Refresh(ctx, func(ctx context.Context, known []string) ([]ListingEntry, error) {
		return strat.list(ctx, snap, known)
	}, force)
	if refreshed {
		d.metrics.observeRefresh(time.Since(start), err)
		if err != nil {
			d.logger.Warn("Status refresh failed", zap.String("strategy", strat.name()), zap.Error(err))
		} else {
			d.logger.Debug("Status refreshed", zap.Int("known_jobs", d.cache.Size()))
		}
	}
	return err
}

// Kill kills the job behind h. A job the status cache last saw in a terminal
// state is not killed again; that check reads the cache without refreshing
// it, so it may rely on stale data and a job that finished since the last
// listing is still sent a kill. Kill never changes cached statuses.
func (d *Driver) Kill(ctx context.Context, h JobHandle) error {
	if h.IsZero() {
		return invalidArgument("kill", "job handle is empty")
	}
	id := h.ExternalID()
	if s, ok := d.cache.Lookup(id); ok && s.IsTerminal() {
		d.logger.Debug("Kill skipped for finished job", zap.String("job_id", id), zap.String("status", string(s)))
		return nil
	}

	strat, snap := d.current()
	err := strat.kill(ctx, snap, id)
	d.metrics.observeKill(err)
	if err != nil {
		d.logger.Warn("Kill failed", zap.String("job_id", id), zap.Error(err))
		return err
	}
	d.logger.Info("Job killed", zap.String("job_id", id))
	return nil
}

// Details returns h with its execution hosts filled in. A job the batch
// system no longer knows is assumed finished and returned unchanged.
func (d *Driver) Details(ctx context.Context, h JobHandle) (JobHandle, error) {
	if h.IsZero() {
		return h, invalidArgument("details", "job handle is empty")
	}
	id := h.ExternalID()
	if !d.cache.Known(id) {
		return h, &Error{Op: "details", JobID: id, Kind: ErrInvalidArgument, Err: fmt.Errorf("job is %s", StatusNotActive)}
	}
	if v, ok := d.hosts.Get(id); ok {
		return h.withHosts(v.([]string)), nil
	}

	strat, snap := d.current()
	details, err := strat.details(ctx, snap, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			d.logger.Warn("Job not found by batch system, assuming finished", zap.String("job_id", id))
			return h, nil
		}
		return h, err
	}
	if len(details.ExecutionHosts) > 0 {
		d.hosts.Add(id, append([]string(nil), details.ExecutionHosts...))
	}
	return h.withHosts(details.ExecutionHosts), nil
}

// Adopt starts tracking a job submitted earlier, for example by a previous
// process of the same user.
func (d *Driver) Adopt(externalID string) (JobHandle, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return JobHandle{}, invalidArgument("adopt", "job id is required")
	}
	d.cache.Register(id)
	d.metrics.setKnown(d.cache.Size())
	return NewJobHandle(id), nil
}

// KnownJobs returns the ids this driver tracks, sorted.
func (d *Driver) KnownJobs() []string {
	return d.cache.KnownIDs()
}

// LastRefreshed returns the time of the last successful status refresh.
func (d *Driver) LastRefreshed() time.Time {
	return d.cache.LastRefreshed()
}

// LastError returns the error of the most recent status refresh, or nil if
// it succeeded.
func (d *Driver) LastError() error {
	return d.cache.LastError()
}

// Close releases the client and the capture directory.
func (d *Driver) Close() error {
	var result *multierror.Error
	if d.client != nil {
		if err := d.client.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close batch client: %w", err))
		}
	}
	if err := os.RemoveAll(d.workDir); err != nil {
		result = multierror.Append(result, fmt.Errorf("remove capture directory: %w", err))
	}
	return result.ErrorOrNil()
}
