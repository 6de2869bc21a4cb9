package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var detailsCmd = &cobra.Command{
	Use:   "details <job_id>",
	Short: "Show the execution hosts of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetails,
}

func init() {
	rootCmd.AddCommand(detailsCmd)
}

type detailsResult struct {
	JobID          string   `json:"job_id" yaml:"job_id"`
	Status         string   `json:"status" yaml:"status"`
	ExecutionHosts []string `json:"execution_hosts" yaml:"execution_hosts"`
}

func runDetails(cmd *cobra.Command, args []string) error {
	s, err := openSession(appConfig)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.tracker.Store().Resolve(args[0])
	if err != nil {
		return exitError(ExitInvalidArgument, "Unknown job", err)
	}
	if rec.ExternalID == "" {
		return exitError(ExitInvalidArgument, "Job has no batch id", fmt.Errorf("record %s was never accepted", rec.RecordID))
	}

	h, err := s.driver.Adopt(rec.ExternalID)
	if err != nil {
		return driverExitError("Invalid job", err)
	}
	detailed, err := s.driver.Details(cmd.Context(), h)
	if err != nil {
		return driverExitError("Details query failed", err)
	}

	res := detailsResult{JobID: rec.ExternalID, Status: statusLabel(*rec), ExecutionHosts: detailed.ExecutionHosts()}
	if res.ExecutionHosts == nil {
		res.ExecutionHosts = append([]string(nil), rec.ExecutionHosts...)
	}
	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, res); ok {
		return err
	}
	_, _ = fmt.Fprintf(out, "job_id=%s\n", res.JobID)
	_, _ = fmt.Fprintf(out, "status=%s\n", res.Status)
	_, _ = fmt.Fprintf(out, "execution_hosts=%s\n", orDash(strings.Join(res.ExecutionHosts, ",")))
	return nil
}
