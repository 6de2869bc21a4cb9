package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/3leaps/lsfq/pkg/output"
)

// ProbeCommand is the job submitted by the write probe.
const ProbeCommand = "/bin/true"

// WriteProbe submits a no-op single-CPU job and kills it straight away. It
// proves the submit and kill commands work end to end.
func WriteProbe(ctx context.Context, target Target, spec Spec) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{
		Mode:    string(spec.Mode),
		Results: []output.PreflightCheckResult{},
	}

	workDir := spec.ProbeWorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	name := "lsfq-probe-" + uuid.NewString()[:8]
	method := fmt.Sprintf("Submit(%s)+Kill", ProbeCommand)

	h, err := target.Submit(ctx, ProbeCommand, 1, workDir, name, nil)
	if err != nil {
		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: CapBatchSubmit,
			Allowed:    false,
			Method:     method,
			ErrorCode:  normalizeErrorCode(err),
			Detail:     err.Error(),
		})
		return rec, fmt.Errorf("%s: %w", CapBatchSubmit, err)
	}

	if err := target.Kill(ctx, h); err != nil {
		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: CapBatchSubmit,
			Allowed:    false,
			Method:     method,
			ErrorCode:  normalizeErrorCode(err),
			Detail:     fmt.Sprintf("probe job %s submitted but not killed: %v", h.ExternalID(), err),
		})
		return rec, fmt.Errorf("%s: kill probe job %s: %w", CapBatchSubmit, h.ExternalID(), err)
	}

	rec.Results = append(rec.Results, output.PreflightCheckResult{
		Capability: CapBatchSubmit,
		Allowed:    true,
		Method:     method,
		Detail:     "probe job " + h.ExternalID(),
	})
	return rec, nil
}
