package lsf

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for driver operations.
var (
	// ErrConfiguration indicates an unknown option, a missing batch system
	// environment, or a status word the driver does not understand.
	ErrConfiguration = errors.New("configuration error")

	// ErrSubmission indicates the batch system did not accept a job.
	ErrSubmission = errors.New("submission failed")

	// ErrTransientQuery indicates a bulk status listing could not be obtained.
	ErrTransientQuery = errors.New("status query failed")

	// ErrKill indicates the kill command failed.
	ErrKill = errors.New("kill failed")

	// ErrInvalidArgument indicates a caller supplied an unusable value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoJobID indicates the submission acknowledgement carried no job id.
	ErrNoJobID = errors.New("could not extract job id")

	// ErrJobNotFound indicates the batch system no longer knows the job.
	ErrJobNotFound = errors.New("job not found")
)

// Error carries the context of a failed driver operation.
type Error struct {
	// Op is the operation that failed (e.g., "submit", "refresh", "kill").
	Op string

	// JobID is the external job id, if known.
	JobID string

	// Command is the command line attempted, if any.
	Command string

	// ExitCode is the exit code of the external process, or -1 when it did
	// not run to completion. Zero when no process was involved.
	ExitCode int

	// Output is captured output useful for diagnosis (stderr or the
	// acknowledgement text).
	Output string

	// Kind is one of the sentinel errors above.
	Kind error

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.JobID != "" {
		b.WriteString(" job ")
		b.WriteString(e.JobID)
	}
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil && !errors.Is(e.Err, e.Kind) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Command != "" {
		fmt.Fprintf(&b, " (command %q", e.Command)
		if e.ExitCode != 0 {
			fmt.Fprintf(&b, ", exit code %d", e.ExitCode)
		}
		b.WriteString(")")
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString(": ")
		b.WriteString(out)
	}
	return b.String()
}

// Unwrap returns both the error kind and the cause for errors.Is/As support.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ClientError is an error reported by a direct batch system client, carrying
// the client library's own code and message.
type ClientError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	return fmt.Sprintf("batch client error %d: %s", e.Code, e.Message)
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsSubmissionFailure returns true if the batch system did not accept a job.
func IsSubmissionFailure(err error) bool {
	return errors.Is(err, ErrSubmission)
}

// IsTransientQuery returns true if a status listing could not be obtained.
func IsTransientQuery(err error) bool {
	return errors.Is(err, ErrTransientQuery)
}

// IsKillFailure returns true if a kill command failed.
func IsKillFailure(err error) bool {
	return errors.Is(err, ErrKill)
}

// IsInvalidArgument returns true if the caller supplied an unusable value.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func configError(op string, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrConfiguration, Err: fmt.Errorf(format, args...)}
}

func invalidArgument(op string, format string, args ...any) error {
	return &Error{Op: op, Kind: ErrInvalidArgument, Err: fmt.Errorf(format, args...)}
}
