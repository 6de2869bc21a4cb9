package jobregistry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// Driver is the subset of *lsf.Driver the tracker needs.
type Driver interface {
	Submit(ctx context.Context, command string, cpuCount int, workDir string, jobName string, args []string) (lsf.JobHandle, error)
	Adopt(externalID string) (lsf.JobHandle, error)
	Status(ctx context.Context, h lsf.JobHandle) (lsf.JobStatus, error)
	Kill(ctx context.Context, h lsf.JobHandle) error
	Details(ctx context.Context, h lsf.JobHandle) (lsf.JobHandle, error)
	Options() lsf.OptionsSnapshot
	Mode() lsf.Mode
}

// SubmitSpec describes one job to submit.
type SubmitSpec struct {
	Command  string
	Args     []string
	CPUCount int
	WorkDir  string
	Name     string
}

// Tracker submits jobs through a driver and mirrors their lifecycle into the
// store, so a later process can resume tracking them.
type Tracker struct {
	store  *Store
	driver Driver
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(store *Store, driver Driver, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, driver: driver, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (t *Tracker) Store() *Store {
	return t.store
}

// Submit submits spec and records the outcome. A failed submission is still
// recorded (without an external id) and the error returned.
func (t *Tracker) Submit(ctx context.Context, spec SubmitSpec) (*JobRecord, error) {
	if t == nil || t.store == nil || t.driver == nil {
		return nil, fmt.Errorf("tracker is not initialized")
	}
	opts := t.driver.Options()
	now := t.now()
	rec := &JobRecord{
		RecordID:     uuid.New().String(),
		Name:         strings.TrimSpace(spec.Name),
		Command:      spec.Command,
		Args:         append([]string(nil), spec.Args...),
		CPUCount:     spec.CPUCount,
		WorkDir:      spec.WorkDir,
		Status:       lsf.StatusNotActive,
		CreatedAt:    now,
		Mode:         t.driver.Mode(),
		RemoteServer: opts[lsf.OptionRemoteServer],
		Queue:        opts[lsf.OptionQueue],
	}

	h, err := t.driver.Submit(ctx, spec.Command, spec.CPUCount, spec.WorkDir, spec.Name, spec.Args)
	if err != nil {
		rec.LastError = err.Error()
		rec.UpdatedAt = &now
		if werr := t.store.Write(rec); werr != nil {
			t.logger.Warn("Failed to record failed submission", zap.String("record_id", rec.RecordID), zap.Error(werr))
		}
		return rec, err
	}

	rec.ExternalID = h.ExternalID()
	rec.Status = lsf.StatusPending
	if err := t.store.Write(rec); err != nil {
		return rec, fmt.Errorf("record job %s: %w", rec.ExternalID, err)
	}
	return rec, nil
}

// Refresh queries the current status of rec and persists it. Terminal
// records are returned unchanged. A status error is stored on the record and
// returned alongside it.
func (t *Tracker) Refresh(ctx context.Context, rec *JobRecord) (*JobRecord, error) {
	if rec.Terminal() || rec.ExternalID == "" {
		return rec, nil
	}
	h, err := t.driver.Adopt(rec.ExternalID)
	if err != nil {
		return rec, err
	}

	status, statusErr := t.driver.Status(ctx, h)
	now := t.now()
	rec.UpdatedAt = &now
	rec.LastError = ""
	if statusErr != nil {
		rec.LastError = statusErr.Error()
	}
	if status != lsf.StatusNotActive {
		rec.Status = status
	}
	if status.IsTerminal() && rec.EndedAt == nil {
		rec.EndedAt = &now
	}
	if status == lsf.StatusRunning && len(rec.ExecutionHosts) == 0 {
		if detailed, err := t.driver.Details(ctx, h); err == nil {
			rec.ExecutionHosts = detailed.ExecutionHosts()
		} else {
			t.logger.Debug("Execution hosts unavailable", zap.String("job_id", rec.ExternalID), zap.Error(err))
		}
	}

	if err := t.store.Write(rec); err != nil {
		return rec, err
	}
	return rec, statusErr
}

// RefreshAll refreshes every non-terminal record in the store.
func (t *Tracker) RefreshAll(ctx context.Context) ([]JobRecord, error) {
	records, err := t.store.List()
	if err != nil {
		return nil, err
	}
	var firstErr error
	for i := range records {
		if _, err := t.Refresh(ctx, &records[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return records, firstErr
}

// Kill kills the job behind rec and records the request. Records already
// known to be finished are left alone.
func (t *Tracker) Kill(ctx context.Context, rec *JobRecord) error {
	if rec.Status.IsTerminal() {
		t.logger.Debug("Kill skipped for finished job", zap.String("job_id", rec.ExternalID))
		return nil
	}
	if rec.ExternalID == "" {
		return fmt.Errorf("job %s was never accepted by the batch system", rec.RecordID)
	}
	h, err := t.driver.Adopt(rec.ExternalID)
	if err != nil {
		return err
	}
	if err := t.driver.Kill(ctx, h); err != nil {
		return err
	}
	now := t.now()
	rec.KilledAt = &now
	rec.UpdatedAt = &now
	return t.store.Write(rec)
}
