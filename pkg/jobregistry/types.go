package jobregistry

import (
	"time"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// JobRecord is the persistent record written to job.json for every job the
// CLI submits, so later invocations can keep tracking it.
//
// NOTE: The schema is part of the stable on-disk contract and is designed
// for backward-compatible extension (additive fields).
type JobRecord struct {
	// RecordID is the registry's own id. It exists before the batch system
	// assigns one.
	RecordID   string        `json:"record_id" yaml:"record_id"`
	ExternalID string        `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Command    string        `json:"command" yaml:"command"`
	Args       []string      `json:"args,omitempty" yaml:"args,omitempty"`
	CPUCount   int           `json:"cpu_count" yaml:"cpu_count"`
	WorkDir    string        `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	Status     lsf.JobStatus `json:"status" yaml:"status"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`

	Mode           lsf.Mode   `json:"mode,omitempty" yaml:"mode,omitempty"`
	RemoteServer   string     `json:"remote_server,omitempty" yaml:"remote_server,omitempty"`
	Queue          string     `json:"queue,omitempty" yaml:"queue,omitempty"`
	ExecutionHosts []string   `json:"execution_hosts,omitempty" yaml:"execution_hosts,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty" yaml:"ended_at,omitempty"`
	KilledAt       *time.Time `json:"killed_at,omitempty" yaml:"killed_at,omitempty"`
	LastError      string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Handle returns the driver handle for the record, or the zero handle when
// submission never produced an external id.
func (r *JobRecord) Handle() lsf.JobHandle {
	return lsf.NewJobHandle(r.ExternalID)
}

// Terminal reports whether the record needs no further tracking.
func (r *JobRecord) Terminal() bool {
	return r.Status.IsTerminal() || (r.ExternalID == "" && r.LastError != "")
}
