// Package preflight checks that the batch system is reachable before jobs
// are submitted to it.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/hashicorp/go-multierror"

	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/output"
)

// Mode defines how aggressive preflight checks are.
type Mode string

const (
	// ModePlanOnly checks local prerequisites without contacting the cluster.
	ModePlanOnly Mode = "plan-only"
	// ModeReadSafe also lists the batch system.
	ModeReadSafe Mode = "read-safe"
	// ModeWriteProbe also submits and kills a no-op job.
	ModeWriteProbe Mode = "write-probe"
)

// ParseMode validates a mode name. The empty string means plan-only.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePlanOnly:
		return ModePlanOnly, nil
	case ModeReadSafe, ModeWriteProbe:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown preflight mode %q (want %s, %s or %s)", s, ModePlanOnly, ModeReadSafe, ModeWriteProbe)
}

// Capability names are stable strings used in JSONL output.
const (
	CapJobsDirWrite = "jobs_dir.write"
	CapRemoteShell  = "remote_shell.exec"
	CapSubmitCmd    = "batch.submit_cmd"
	CapStatusCmd    = "batch.status_cmd"
	CapKillCmd      = "batch.kill_cmd"
	CapBatchEnv     = "batch.env"
	CapBatchClient  = "batch.client"
	CapBatchList    = "batch.list"
	CapBatchSubmit  = "batch.submit"
)

// Target is the driver surface preflight exercises.
type Target interface {
	Mode() lsf.Mode
	Options() lsf.OptionsSnapshot
	ForceRefresh(ctx context.Context) error
	Submit(ctx context.Context, command string, cpuCount int, workDir string, jobName string, args []string) (lsf.JobHandle, error)
	Kill(ctx context.Context, h lsf.JobHandle) error
}

// Spec controls how preflight checks are executed.
type Spec struct {
	Mode Mode

	// JobsDir is where job records are written. Skipped when empty.
	JobsDir string

	// RequiredEnv lists variables the batch API needs in direct mode.
	RequiredEnv []string

	// ProbeWorkDir is the working directory of the write probe job.
	ProbeWorkDir string

	// LookPath and Lookup default to exec.LookPath and os.LookupEnv.
	LookPath func(file string) (string, error)
	Lookup   lsf.EnvLookup
}

// Run executes every check the mode allows against target. All checks run;
// the returned error aggregates the failures.
func Run(ctx context.Context, target Target, spec Spec) (*output.PreflightRecord, error) {
	if spec.Mode == "" {
		spec.Mode = ModePlanOnly
	}
	if spec.LookPath == nil {
		spec.LookPath = exec.LookPath
	}
	rec := &output.PreflightRecord{
		Mode:    string(spec.Mode),
		Results: []output.PreflightCheckResult{},
	}

	var errs *multierror.Error
	add := func(r output.PreflightCheckResult, err error) {
		rec.Results = append(rec.Results, r)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Capability, err))
		}
	}

	if spec.JobsDir != "" {
		add(checkJobsDir(spec.JobsDir))
	}

	opts := target.Options()
	switch target.Mode() {
	case lsf.ModeRemote:
		add(checkBinary(spec.LookPath, CapRemoteShell, optionOrDefault(opts, lsf.OptionRemoteShellBinary, lsf.DefaultRemoteShell)))
	case lsf.ModeLocal:
		add(checkBinary(spec.LookPath, CapSubmitCmd, optionOrDefault(opts, lsf.OptionSubmitCmd, lsf.DefaultSubmitCmd)))
		add(checkBinary(spec.LookPath, CapStatusCmd, optionOrDefault(opts, lsf.OptionStatusCmd, lsf.DefaultStatusCmd)))
		add(checkBinary(spec.LookPath, CapKillCmd, optionOrDefault(opts, lsf.OptionKillCmd, lsf.DefaultKillCmd)))
	case lsf.ModeDirect:
		if len(spec.RequiredEnv) > 0 {
			add(checkEnv(spec.Lookup, spec.RequiredEnv))
		}
	}

	if spec.Mode == ModePlanOnly || errs.ErrorOrNil() != nil {
		return rec, errs.ErrorOrNil()
	}

	add(checkList(ctx, target))
	if spec.Mode == ModeWriteProbe && errs.ErrorOrNil() == nil {
		probeRec, err := WriteProbe(ctx, target, spec)
		rec.Results = append(rec.Results, probeRec.Results...)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return rec, errs.ErrorOrNil()
}

func checkJobsDir(dir string) (output.PreflightCheckResult, error) {
	res := output.PreflightCheckResult{Capability: CapJobsDirWrite, Method: fmt.Sprintf("CreateTemp(%s)", dir)}
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		var f *os.File
		f, err = os.CreateTemp(dir, ".preflight-*")
		if err == nil {
			name := f.Name()
			_ = f.Close()
			err = os.Remove(name)
		}
	}
	if err != nil {
		res.ErrorCode = normalizeErrorCode(err)
		res.Detail = err.Error()
		return res, err
	}
	res.Allowed = true
	return res, nil
}

func checkBinary(lookPath func(string) (string, error), capability, binary string) (output.PreflightCheckResult, error) {
	res := output.PreflightCheckResult{Capability: capability, Method: fmt.Sprintf("LookPath(%s)", binary)}
	path, err := lookPath(binary)
	if err != nil {
		res.ErrorCode = output.ErrCodeNotFound
		res.Detail = err.Error()
		return res, err
	}
	res.Allowed = true
	res.Detail = path
	return res, nil
}

func checkEnv(lookup lsf.EnvLookup, vars []string) (output.PreflightCheckResult, error) {
	res := output.PreflightCheckResult{Capability: CapBatchEnv, Method: "Getenv"}
	if err := lsf.CheckEnvironment(lookup, vars...); err != nil {
		res.ErrorCode = output.ErrCodeConfiguration
		res.Detail = err.Error()
		return res, err
	}
	res.Allowed = true
	return res, nil
}

func checkList(ctx context.Context, target Target) (output.PreflightCheckResult, error) {
	res := output.PreflightCheckResult{Capability: CapBatchList, Method: listMethod(target)}
	if err := target.ForceRefresh(ctx); err != nil {
		res.ErrorCode = normalizeErrorCode(err)
		res.Detail = err.Error()
		return res, err
	}
	res.Allowed = true
	return res, nil
}

func listMethod(target Target) string {
	if target.Mode() == lsf.ModeDirect {
		return "Jobs()"
	}
	return optionOrDefault(target.Options(), lsf.OptionStatusCmd, lsf.DefaultStatusCmd) + " -a"
}

func optionOrDefault(opts lsf.OptionsSnapshot, name, def string) string {
	if v := opts[name]; v != "" {
		return v
	}
	return def
}

func normalizeErrorCode(err error) string {
	switch {
	case lsf.IsTransientQuery(err), errors.Is(err, context.DeadlineExceeded):
		return output.ErrCodeUnavailable
	case lsf.IsConfiguration(err):
		return output.ErrCodeConfiguration
	case errors.Is(err, fs.ErrPermission):
		return output.ErrCodePermission
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, exec.ErrNotFound):
		return output.ErrCodeNotFound
	default:
		return output.ErrCodeInternal
	}
}
