package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show the current status of a job",
	Long: `Query the batch system for the status of a recorded job.

The job may be named by its batch job id, its record id, or a unique record
id prefix. If the batch system cannot be reached, the last known status is
shown and the command exits with code 3.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.tracker.Store().Resolve(args[0])
	if err != nil {
		return exitError(ExitInvalidArgument, "Unknown job", err)
	}

	rec, statusErr := s.tracker.Refresh(cmd.Context(), rec)
	if statusErr != nil && !lsf.IsTransientQuery(statusErr) {
		return driverExitError("Status query failed", statusErr)
	}
	if statusErr != nil {
		observability.CLILogger.Warn("Showing last known status", zap.String("job_id", rec.ExternalID), zap.Error(statusErr))
	}

	if err := printRecord(cmd, rec); err != nil {
		return err
	}
	if statusErr != nil {
		return exitError(ExitUnavailable, "Batch system unavailable", statusErr)
	}
	return nil
}

func printRecord(cmd *cobra.Command, rec *jobregistry.JobRecord) error {
	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, rec); ok {
		return err
	}
	writeJobRecord(out, rec)
	return nil
}
