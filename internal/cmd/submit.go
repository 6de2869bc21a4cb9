package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/preflight"
)

var submitCmd = &cobra.Command{
	Use:   "submit [flags] -- <command> [args...]",
	Short: "Submit a job to the batch system",
	Long: `Submit one job to the batch system and record it locally.

The command and its arguments are passed to the scheduler unchanged. The
job's batch output goes to <workdir>/<name>.LSF-stdout.

Example:
  lsfq submit --cpus 8 --name assemble -- /opt/asm/run.sh sample.fq
  lsfq submit --wait -- /opt/tools/check.sh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var (
	submitCPUs      int
	submitWorkDir   string
	submitName      string
	submitWait      bool
	submitPoll      time.Duration
	submitPreflight string
)

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().IntVarP(&submitCPUs, "cpus", "n", 1, "Number of CPUs to request")
	submitCmd.Flags().StringVarP(&submitWorkDir, "workdir", "w", "", "Working directory on the cluster (default: current directory)")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Job name (default: command base name)")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "Wait until the job finishes")
	submitCmd.Flags().DurationVar(&submitPoll, "poll", 0, "Status poll interval with --wait (default: driver refresh interval)")
	submitCmd.Flags().StringVar(&submitPreflight, "preflight", "", "Run environment checks before submitting (plan-only, read-safe)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	workDir := submitWorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return exitError(ExitFailure, "Failed to determine working directory", err)
		}
		workDir = wd
	}

	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	if submitPreflight != "" {
		mode, err := preflight.ParseMode(submitPreflight)
		if err != nil || mode == preflight.ModeWriteProbe {
			return exitError(ExitInvalidArgument, "Invalid --preflight", fmt.Errorf("want %s or %s, got %q", preflight.ModePlanOnly, preflight.ModeReadSafe, submitPreflight))
		}
		if _, err := preflight.Run(ctx, s.driver, preflight.Spec{Mode: mode, JobsDir: appConfig.JobsDir, RequiredEnv: directRequiredEnv()}); err != nil {
			return driverExitError("Preflight failed", err)
		}
	}

	rec, err := s.tracker.Submit(ctx, jobregistry.SubmitSpec{
		Command:  args[0],
		Args:     args[1:],
		CPUCount: submitCPUs,
		WorkDir:  workDir,
		Name:     submitName,
	})
	if err != nil {
		observability.CLILogger.Error("Submission failed", zap.Error(err))
		return driverExitError("Submission failed", err)
	}
	observability.CLILogger.Info("Job submitted",
		zap.String("job_id", rec.ExternalID),
		zap.String("record_id", rec.RecordID),
		zap.String("mode", string(rec.Mode)))

	if submitWait {
		final, _, err := waitForJobs(cmd, s, []*jobregistry.JobRecord{rec}, submitPoll, nil)
		if err != nil {
			return err
		}
		rec = final[0]
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, rec); ok {
		return err
	}
	if submitWait {
		writeJobRecord(out, rec)
	} else {
		_, _ = fmt.Fprintln(out, rec.ExternalID)
	}
	if submitWait && rec.Status == lsf.StatusExited {
		return exitError(ExitFailure, "Job failed", fmt.Errorf("job %s exited", rec.ExternalID))
	}
	return nil
}
