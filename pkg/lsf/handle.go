package lsf

import "slices"

// JobHandle identifies a job submitted through a Driver.
//
// Handles are immutable values. The zero value means "submission failed" and
// is never queried against the batch system.
type JobHandle struct {
	externalID string
	hosts      []string
}

// NewJobHandle returns a handle for an external job id.
func NewJobHandle(externalID string) JobHandle {
	return JobHandle{externalID: externalID}
}

// ExternalID returns the id assigned by the batch system.
func (h JobHandle) ExternalID() string { return h.externalID }

// ExecutionHosts returns the hosts the job was placed on, if known.
func (h JobHandle) ExecutionHosts() []string { return slices.Clone(h.hosts) }

// IsZero reports whether h is the zero handle.
func (h JobHandle) IsZero() bool { return h.externalID == "" }

// String returns the external id.
func (h JobHandle) String() string { return h.externalID }

func (h JobHandle) withHosts(hosts []string) JobHandle {
	return JobHandle{externalID: h.externalID, hosts: slices.Clone(hosts)}
}

// SubmitRequest is a single job submission as seen by a direct client.
type SubmitRequest struct {
	// CommandLine is the command and its arguments joined by single spaces.
	CommandLine string
	Command     string
	Args        []string
	JobName     string
	CPUCount    int
	WorkDir     string
	// OutputFile receives the batch system's own job output.
	OutputFile      string
	Queue           string
	ResourceRequest string
	LoginShell      string
}

// ListingEntry is one row of a bulk status listing.
type ListingEntry struct {
	JobID      string
	User       string
	StatusWord string
}

// JobDetails carries the detailed view of a single job.
type JobDetails struct {
	JobID          string
	StatusWord     string
	ExecutionHosts []string
}
