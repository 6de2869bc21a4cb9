package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/match"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage recorded jobs",
	Long: `Manage the local records of jobs submitted through lsfq.

Records live under jobs_dir (default ~/.local/state/lsfq/jobs), one
directory per job holding job.json.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs",
	Long: `List recorded jobs. Without --all or --status only unfinished jobs are shown.

Examples:
  lsfq jobs list --refresh
  lsfq jobs list --name 'sim-*' --exclude-name '*-debug' --status exited
  lsfq jobs list --since 2026-10-01 --command '^/opt/asm/'`,
	Args: cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete records of jobs that finished long ago",
	Args:  cobra.NoArgs,
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("refresh", false, "Query the batch system for unfinished jobs first")
	jobsListCmd.Flags().Bool("all", false, "Include finished jobs")
	jobsListCmd.Flags().StringArray("name", nil, "Job name glob (repeatable)")
	jobsListCmd.Flags().StringArray("exclude-name", nil, "Exclude job names matching this glob (repeatable)")
	jobsListCmd.Flags().StringSlice("status", nil, "Only these statuses (pending, running, done, exited, submit_failed)")
	jobsListCmd.Flags().String("since", "", "Only jobs created at or after this date (2006-01-02 or RFC3339)")
	jobsListCmd.Flags().String("until", "", "Only jobs created before this date")
	jobsListCmd.Flags().String("command", "", "Regular expression the command line must match")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete finished jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	refresh, _ := cmd.Flags().GetBool("refresh")
	all, _ := cmd.Flags().GetBool("all")
	filterCfg := jobsFilterConfig(cmd)
	filter, err := match.NewFilterFromConfig(filterCfg)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid filter", err)
	}
	if len(filterCfg.Statuses) > 0 {
		all = true
	}

	var records []jobregistry.JobRecord
	if refresh {
		s, serr := openSession(appConfig)
		if serr != nil {
			return serr
		}
		defer s.Close()
		records, err = s.tracker.RefreshAll(cmd.Context())
		if err != nil && !lsf.IsTransientQuery(err) {
			return driverExitError("Status query failed", err)
		}
		if err != nil {
			observability.CLILogger.Warn("Showing last known statuses", zap.Error(err))
		}
	} else {
		records, err = jobregistry.NewStore(appConfig.JobsDir).List()
		if err != nil {
			return exitError(ExitFailure, "Failed to read job records", err)
		}
	}

	if !all {
		filtered := records[:0]
		for _, r := range records {
			if !r.Terminal() {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	records = filter.Apply(records)
	observability.CLILogger.Debug("Listing jobs", zap.String("filter", filter.String()), zap.Int("count", len(records)))

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, records); ok {
		return err
	}
	if len(records) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return nil
	}
	return writeJobTable(out, records)
}

func jobsFilterConfig(cmd *cobra.Command) *match.FilterConfig {
	names, _ := cmd.Flags().GetStringArray("name")
	excludes, _ := cmd.Flags().GetStringArray("exclude-name")
	statuses, _ := cmd.Flags().GetStringSlice("status")
	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	command, _ := cmd.Flags().GetString("command")

	cfg := &match.FilterConfig{Names: names, ExcludeNames: excludes, Statuses: statuses, CommandRegex: command}
	if since != "" || until != "" {
		cfg.Created = &match.DateFilterConfig{After: since, Before: until}
	}
	return cfg
}

type jobsGCResult struct {
	Deleted      int    `json:"deleted" yaml:"deleted"`
	WouldDelete  int    `json:"would_delete" yaml:"would_delete"`
	DryRun       bool   `json:"dry_run" yaml:"dry_run"`
	MaxAgeString string `json:"max_age" yaml:"max_age"`
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAgeStr = strings.TrimSpace(maxAgeStr)
	if maxAgeStr == "" {
		maxAgeStr = "168h"
	}
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid --max-age", err)
	}
	if maxAge <= 0 {
		return exitError(ExitInvalidArgument, "Invalid --max-age", fmt.Errorf("must be > 0"))
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	store := jobregistry.NewStore(appConfig.JobsDir)
	pruned, err := store.Prune(time.Now().UTC().Add(-maxAge), dryRun)
	if err != nil {
		return exitError(ExitFailure, "Failed to prune job records", err)
	}

	res := jobsGCResult{DryRun: dryRun, MaxAgeString: maxAgeStr}
	if dryRun {
		res.WouldDelete = len(pruned)
	} else {
		res.Deleted = len(pruned)
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, res); ok {
		return err
	}
	if dryRun {
		_, _ = fmt.Fprintf(out, "would_delete=%d\n", res.WouldDelete)
		return nil
	}
	_, _ = fmt.Fprintf(out, "deleted=%d\n", res.Deleted)
	return nil
}
