package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
)

var killCmd = &cobra.Command{
	Use:   "kill <job_id>...",
	Short: "Kill jobs",
	Long: `Ask the batch system to kill the given jobs.

Killing a job that has already finished is not an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	var firstErr error
	for _, ref := range args {
		rec, err := s.tracker.Store().Resolve(ref)
		if err != nil {
			if firstErr == nil {
				firstErr = exitError(ExitInvalidArgument, "Unknown job", err)
			}
			continue
		}
		// Refresh first so a job already seen finished is not killed again.
		if _, err := s.tracker.Refresh(cmd.Context(), rec); err != nil {
			observability.CLILogger.Debug("Status refresh before kill failed", zap.String("job_id", rec.ExternalID), zap.Error(err))
		}
		if err := s.tracker.Kill(cmd.Context(), rec); err != nil {
			observability.CLILogger.Error("Kill failed", zap.String("job_id", rec.ExternalID), zap.Error(err))
			if firstErr == nil {
				firstErr = driverExitError("Kill failed", err)
			}
			continue
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "killed=%s\n", rec.ExternalID)
	}
	return firstErr
}
