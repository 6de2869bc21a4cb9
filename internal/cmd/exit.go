package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// Process exit codes.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitInvalidArgument = 2
	ExitConfiguration   = 2
	ExitUnavailable     = 3
	ExitCancelled       = 130
)

type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, err: fmt.Errorf("%s: %w (exit code %d)", message, err, code)}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ExitCancelled
	case lsf.IsInvalidArgument(err), lsf.IsConfiguration(err):
		return ExitInvalidArgument
	case lsf.IsTransientQuery(err):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

// driverExitError wraps a driver error with the exit code its kind implies.
func driverExitError(message string, err error) error {
	return exitError(ExitCode(err), message, err)
}
