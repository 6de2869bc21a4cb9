package lsf

// JobStatus is the driver's lifecycle view of a batch job.
//
// NOTE: These values are persisted by the CLI job registry and printed in
// JSON output; they are part of the stable contract.
type JobStatus string

const (
	// StatusNotActive is reported for handles this driver never submitted.
	StatusNotActive JobStatus = "not_active"
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusDone      JobStatus = "done"
	StatusExited    JobStatus = "exited"
)

// IsTerminal reports whether the job will not change state again.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusExited
}

// Valid reports whether s is one of the defined statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusNotActive, StatusPending, StatusRunning, StatusDone, StatusExited:
		return true
	}
	return false
}

func (s JobStatus) String() string { return string(s) }

// statusWords maps the batch system's native status vocabulary.
// Suspended jobs count as running; UNKWN counts as exited so pollers make
// progress.
var statusWords = map[string]JobStatus{
	"PEND":  StatusPending,
	"PSUSP": StatusPending,
	"RUN":   StatusRunning,
	"SSUSP": StatusRunning,
	"USUSP": StatusRunning,
	"DONE":  StatusDone,
	"PDONE": StatusDone,
	"EXIT":  StatusExited,
	"PERR":  StatusExited,
	"UNKWN": StatusExited,
}

// ParseStatusWord maps a native status word to a JobStatus.
// Words outside the table are a configuration error.
func ParseStatusWord(word string) (JobStatus, error) {
	if s, ok := statusWords[word]; ok {
		return s, nil
	}
	return "", configError("parse status", "unrecognized status word %q", word)
}
