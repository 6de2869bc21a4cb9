package cmd

import (
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/observability"
	"github.com/3leaps/lsfq/pkg/output"
	"github.com/3leaps/lsfq/pkg/preflight"
)

var (
	doctorMode         string
	doctorProbeWorkDir string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check that lsfq can reach the batch system with the current configuration.

Modes:
  plan-only    local prerequisites only (commands on PATH, job records directory)
  read-safe    also list the batch system (default)
  write-probe  also submit a no-op job and kill it

Examples:
  lsfq doctor
  lsfq --remote-server login01 doctor --mode write-probe --probe-workdir /scratch/me`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorMode, "mode", string(preflight.ModeReadSafe), "Check mode (plan-only, read-safe, write-probe)")
	doctorCmd.Flags().StringVar(&doctorProbeWorkDir, "probe-workdir", "", "Working directory for the write probe job (default: system temp dir)")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	mode, err := preflight.ParseMode(doctorMode)
	if err != nil {
		return exitError(ExitInvalidArgument, "Invalid --mode", err)
	}
	logger := observability.CLILogger
	logger.Info("=== lsfq doctor ===",
		zap.String("mode", string(mode)),
		zap.String("go_version", runtime.Version()),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))

	s, err := openSession(appConfig)
	if err != nil {
		rec := &output.PreflightRecord{
			Mode: string(mode),
			Results: []output.PreflightCheckResult{{
				Capability: preflight.CapBatchClient,
				Method:     "New",
				ErrorCode:  output.ErrCodeConfiguration,
				Detail:     err.Error(),
			}},
		}
		_ = reportDoctor(cmd, rec)
		return err
	}
	defer s.Close()

	rec, err := preflight.Run(cmd.Context(), s.driver, preflight.Spec{
		Mode:         mode,
		JobsDir:      appConfig.JobsDir,
		RequiredEnv:  directRequiredEnv(),
		ProbeWorkDir: doctorProbeWorkDir,
	})
	if werr := reportDoctor(cmd, rec); werr != nil {
		return werr
	}
	if err != nil {
		logger.Warn("Some checks failed. Review the output above for details.")
		return driverExitError("Diagnostic checks failed", err)
	}
	logger.Info("All checks passed", zap.String("batch_mode", string(s.driver.Mode())))
	return nil
}

func reportDoctor(cmd *cobra.Command, rec *output.PreflightRecord) error {
	logger := observability.CLILogger
	for i, r := range rec.Results {
		msg := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(rec.Results), r.Capability)
		if r.Allowed {
			logger.Info(msg+" ok", zap.String("method", r.Method))
		} else {
			logger.Error(msg+" failed", zap.String("method", r.Method), zap.String("error_code", r.ErrorCode), zap.String("detail", r.Detail))
		}
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, rec); ok {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CHECK\tRESULT\tMETHOD\tDETAIL")
	for _, r := range rec.Results {
		result := "ok"
		if !r.Allowed {
			result = "FAIL " + r.ErrorCode
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Capability, result, orDash(r.Method), orDash(r.Detail))
	}
	return tw.Flush()
}
