package lsf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// strategy is one way of talking to the batch system. The driver picks one
// whenever remoteServer changes.
type strategy interface {
	name() string
	submit(ctx context.Context, opts OptionsSnapshot, req *SubmitRequest) (externalID string, err error)
	list(ctx context.Context, opts OptionsSnapshot, knownIDs []string) ([]ListingEntry, error)
	kill(ctx context.Context, opts OptionsSnapshot, externalID string) error
	details(ctx context.Context, opts OptionsSnapshot, externalID string) (*JobDetails, error)
}

// Client is an in-process batch system client used by the direct strategy.
type Client interface {
	// Ready reports whether the client can reach the batch system.
	Ready() error

	// Submit submits one job and returns its external id. When ctx ends
	// after the batch system has assigned an id, Submit returns the id
	// together with the context error.
	Submit(ctx context.Context, req *SubmitRequest) (string, error)

	// Jobs lists the given jobs. Jobs the batch system no longer knows are
	// omitted.
	Jobs(ctx context.Context, ids []string) ([]ListingEntry, error)

	// Job returns details for one job, or an error wrapping ErrJobNotFound.
	Job(ctx context.Context, id string) (*JobDetails, error)

	Kill(ctx context.Context, id string) error
	Close() error
}

// EnvLookup matches os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// CheckEnvironment verifies that every named variable is set and non-empty.
// A nil lookup uses os.LookupEnv.
func CheckEnvironment(lookup EnvLookup, vars ...string) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	for _, v := range vars {
		if val, ok := lookup(v); !ok || strings.TrimSpace(val) == "" {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return configError("check environment", "required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

type directStrategy struct {
	client Client
	logger *zap.Logger
}

func newDirectStrategy(client Client, logger *zap.Logger) (*directStrategy, error) {
	if client == nil {
		return nil, configError("direct", "no batch client configured and remoteServer is not set")
	}
	if err := client.Ready(); err != nil {
		return nil, &Error{Op: "direct", Kind: ErrConfiguration, Err: err}
	}
	return &directStrategy{client: client, logger: logger}, nil
}

func (s *directStrategy) name() string { return string(ModeDirect) }

func (s *directStrategy) submit(ctx context.Context, _ OptionsSnapshot, req *SubmitRequest) (string, error) {
	id, err := s.client.Submit(ctx, req)
	if err != nil {
		return id, &Error{Op: "submit", JobID: id, Command: req.CommandLine, Kind: ErrSubmission, Err: err}
	}
	if strings.TrimSpace(id) == "" {
		return "", &Error{Op: "submit", Command: req.CommandLine, Kind: ErrSubmission, Err: ErrNoJobID}
	}
	return id, nil
}

func (s *directStrategy) list(ctx context.Context, _ OptionsSnapshot, knownIDs []string) ([]ListingEntry, error) {
	entries, err := s.client.Jobs(ctx, knownIDs)
	if err != nil {
		return nil, &Error{Op: "refresh", Kind: ErrTransientQuery, Err: err}
	}
	return entries, nil
}

func (s *directStrategy) kill(ctx context.Context, _ OptionsSnapshot, externalID string) error {
	if err := s.client.Kill(ctx, externalID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil
		}
		return &Error{Op: "kill", JobID: externalID, Kind: ErrKill, Err: err}
	}
	return nil
}

func (s *directStrategy) details(ctx context.Context, _ OptionsSnapshot, externalID string) (*JobDetails, error) {
	d, err := s.client.Job(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, &Error{Op: "details", JobID: externalID, Kind: ErrTransientQuery, Err: err}
	}
	if d == nil {
		return nil, fmt.Errorf("details %s: %w", externalID, ErrJobNotFound)
	}
	return d, nil
}
