package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/output"
)

var watchCmd = &cobra.Command{
	Use:   "watch [job_id...]",
	Short: "Wait until jobs finish",
	Long: `Poll the batch system until the given jobs (default: every unfinished
recorded job) reach done or exited.

Status changes are logged as they are observed. With --jsonl every change
is written to stdout as a JSON line, followed by a summary record.
Interrupting the command leaves the jobs running.`,
	RunE: runWatch,
}

var (
	watchPoll  time.Duration
	watchJSONL bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchPoll, "poll", 0, "Status poll interval (default: driver refresh interval)")
	watchCmd.Flags().BoolVar(&watchJSONL, "jsonl", false, "Stream status changes as JSON lines")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	var records []*jobregistry.JobRecord
	if len(args) > 0 {
		for _, ref := range args {
			rec, err := s.tracker.Store().Resolve(ref)
			if err != nil {
				return exitError(ExitInvalidArgument, "Unknown job", err)
			}
			records = append(records, rec)
		}
	} else {
		all, err := s.tracker.Store().List()
		if err != nil {
			return exitError(ExitFailure, "Failed to read job records", err)
		}
		for i := range all {
			if !all[i].Terminal() {
				records = append(records, &all[i])
			}
		}
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No unfinished jobs")
		return nil
	}

	out := cmd.OutOrStdout()
	var events output.Writer
	if watchJSONL {
		events = output.NewJSONLWriter(out, uuid.NewString(), string(s.driver.Mode()))
		defer func() { _ = events.Close() }()
	}

	start := time.Now()
	final, queryErrors, err := waitForJobs(cmd, s, records, watchPoll, events)
	if err != nil {
		return err
	}

	flat := make([]jobregistry.JobRecord, 0, len(final))
	failed := 0
	for _, r := range final {
		flat = append(flat, *r)
		if r.Status == lsf.StatusExited {
			failed++
		}
	}
	if events != nil {
		elapsed := time.Since(start)
		if err := events.WriteSummary(cmd.Context(), &output.SummaryRecord{
			Jobs:          len(final),
			Done:          len(final) - failed,
			Exited:        failed,
			Duration:      elapsed,
			DurationHuman: elapsed.Round(time.Millisecond).String(),
			Errors:        queryErrors,
		}); err != nil {
			return err
		}
	} else {
		if ok, err := writeStructured(out, flat); ok {
			if err != nil {
				return err
			}
		} else if err := writeJobTable(out, flat); err != nil {
			return err
		}
	}
	if failed > 0 {
		return exitError(ExitFailure, "Jobs failed", fmt.Errorf("%d of %d jobs exited", failed, len(final)))
	}
	return nil
}

// waitForJobs refreshes records until all are terminal. Transient listing
// failures are logged and retried on the next tick; their count is returned.
// Status changes are also written to events when it is non-nil.
func waitForJobs(cmd *cobra.Command, s *session, records []*jobregistry.JobRecord, poll time.Duration, events output.Writer) ([]*jobregistry.JobRecord, int64, error) {
	ctx := cmd.Context()
	if poll <= 0 {
		poll = appConfig.Driver.RefreshInterval
	}
	logger := observability.CLILogger

	var queryErrors int64
	last := make(map[string]lsf.JobStatus, len(records))
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		pending := 0
		for i, rec := range records {
			if rec.Terminal() {
				continue
			}
			updated, err := s.tracker.Refresh(ctx, rec)
			records[i] = updated
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return records, queryErrors, exitError(ExitCancelled, "Interrupted", err)
			case lsf.IsTransientQuery(err):
				queryErrors++
				logger.Warn("Status query failed, will retry", zap.String("job_id", rec.ExternalID), zap.Error(err))
				if events != nil {
					if werr := events.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeUnavailable, Message: err.Error(), JobID: rec.ExternalID}); werr != nil {
						return records, queryErrors, werr
					}
				}
			default:
				return records, queryErrors, driverExitError("Status query failed", err)
			}
			if prev, ok := last[updated.RecordID]; !ok || prev != updated.Status {
				logger.Info("Job status", zap.String("job_id", updated.ExternalID), zap.String("status", updated.Status.String()))
				last[updated.RecordID] = updated.Status
				if events != nil {
					if werr := events.WriteJob(ctx, jobEvent(updated, prev)); werr != nil {
						return records, queryErrors, werr
					}
				}
			}
			if !updated.Terminal() {
				pending++
			}
		}
		if pending == 0 {
			return records, queryErrors, nil
		}

		select {
		case <-ctx.Done():
			return records, queryErrors, exitError(ExitCancelled, "Interrupted", ctx.Err())
		case <-ticker.C:
		}
	}
}

func jobEvent(r *jobregistry.JobRecord, prev lsf.JobStatus) *output.JobRecord {
	return &output.JobRecord{
		RecordID:       r.RecordID,
		JobID:          r.ExternalID,
		Name:           r.Name,
		Status:         statusLabel(*r),
		PreviousStatus: string(prev),
		ExecutionHosts: r.ExecutionHosts,
		EndedAt:        r.EndedAt,
	}
}
