// Package output provides JSONL event output for job tracking.
//
// Output is structured as typed record envelopes containing job status
// changes, errors, preflight results and summaries. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: lsfq.<type>.v<version>
const (
	// TypeJob identifies job status records.
	TypeJob = "lsfq.job.v1"

	// TypeError identifies error records.
	TypeError = "lsfq.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "lsfq.summary.v1"

	// TypePreflight identifies environment check records.
	TypePreflight = "lsfq.preflight.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "lsfq.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record written by one invocation.
	RunID string `json:"run_id"`

	// Mode is the transport used to reach the batch system.
	Mode string `json:"mode"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for an observed job status.
type JobRecord struct {
	RecordID       string     `json:"record_id"`
	JobID          string     `json:"job_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Status         string     `json:"status"`
	PreviousStatus string     `json:"previous_status,omitempty"`
	ExecutionHosts []string   `json:"execution_hosts,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// PreflightRecord is the data payload for environment checks.
//
// Preflight records are emitted before jobs are submitted. They state what
// was checked and whether the batch system appears reachable.
type PreflightRecord struct {
	Mode    string                 `json:"mode"`
	Results []PreflightCheckResult `json:"results"`
}

// PreflightCheckResult is a single capability check result.
type PreflightCheckResult struct {
	Capability string `json:"capability" yaml:"capability"`
	Allowed    bool   `json:"allowed" yaml:"allowed"`
	Method     string `json:"method,omitempty" yaml:"method,omitempty"`
	ErrorCode  string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Detail     string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Failed returns the results that were not allowed.
func (p *PreflightRecord) Failed() []PreflightCheckResult {
	var failed []PreflightCheckResult
	for _, r := range p.Results {
		if !r.Allowed {
			failed = append(failed, r)
		}
	}
	return failed
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than ending the stream, so one
// failing status query does not hide the rest of the jobs.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord and PreflightCheckResult.
const (
	// ErrCodeUnavailable indicates the batch system could not be queried.
	ErrCodeUnavailable = "UNAVAILABLE"

	// ErrCodeNotFound indicates a command or directory was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeConfiguration indicates the driver is misconfigured.
	ErrCodeConfiguration = "CONFIGURATION"

	// ErrCodePermission indicates a filesystem permission failure.
	ErrCodePermission = "PERMISSION_DENIED"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	Jobs   int `json:"jobs"`
	Done   int `json:"done"`
	Exited int `json:"exited"`

	// Duration is the total wait duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of status query errors encountered.
	Errors int64 `json:"errors"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
