//go:build drmaa

// Package drmaaclient implements lsf.Client on top of the DRMAA C library
// shipped with the batch system.
//
// Building requires cgo and the native DRMAA library (for LSF, the
// FedStage/IBM lsf-drmaa package) on the library path.
package drmaaclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgruber/drmaa"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// RequiredEnv lists the variables the LSF DRMAA library needs.
var RequiredEnv = []string{"LSF_ENVDIR", "LSF_SERVERDIR"}

// Client is a DRMAA session. DRMAA sessions are not safe for concurrent use,
// so every call is serialized.
type Client struct {
	mu      sync.Mutex
	session *drmaa.Session
	initErr error
	logger  *zap.Logger
}

var _ lsf.Client = (*Client)(nil)

// New opens a DRMAA session. A missing environment or a failed session is
// reported by Ready rather than by New so the driver can classify it.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger}
	if err := lsf.CheckEnvironment(nil, RequiredEnv...); err != nil {
		c.initErr = err
		return c
	}
	s, err := drmaa.MakeSession()
	if err != nil {
		c.initErr = fmt.Errorf("open drmaa session: %w", clientError(err))
		return c
	}
	c.session = &s
	return c
}

// Ready implements lsf.Client.
func (c *Client) Ready() error { return c.initErr }

// Submit implements lsf.Client.
func (c *Client) Submit(ctx context.Context, req *lsf.SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", c.initErr
	}

	jt, err := c.session.AllocateJobTemplate()
	if err != nil {
		return "", clientError(err)
	}
	defer func() { _ = c.session.DeleteJobTemplate(&jt) }()

	set := []setter{
		{"remote command", func() error { return jt.SetRemoteCommand(req.Command) }},
		{"job name", func() error { return jt.SetJobName(req.JobName) }},
		{"output path", func() error { return jt.SetOutputPath(":" + req.OutputFile) }},
		{"native specification", func() error { return jt.SetNativeSpecification(nativeSpec(req)) }},
	}
	if len(req.Args) > 0 {
		set = append(set, setter{"args", func() error { return jt.SetArgs(req.Args) }})
	}
	if req.WorkDir != "" {
		set = append(set, setter{"working directory", func() error { return jt.SetWD(req.WorkDir) }})
	}
	for _, s := range set {
		if err := s.fn(); err != nil {
			return "", fmt.Errorf("set %s: %w", s.name, clientError(err))
		}
	}

	id, err := c.session.RunJob(&jt)
	if err != nil {
		return "", clientError(err)
	}
	c.logger.Debug("DRMAA job submitted", zap.String("job_id", id), zap.String("native_spec", nativeSpec(req)))
	if err := ctx.Err(); err != nil {
		return id, err
	}
	return id, nil
}

type setter struct {
	name string
	fn   func() error
}

// nativeSpec renders the bsub flags DRMAA has no attribute for.
func nativeSpec(req *lsf.SubmitRequest) string {
	parts := []string{fmt.Sprintf("-n %d", req.CPUCount)}
	if req.Queue != "" {
		parts = append(parts, "-q "+req.Queue)
	}
	if req.ResourceRequest != "" {
		parts = append(parts, fmt.Sprintf("-R %q", req.ResourceRequest))
	}
	if req.LoginShell != "" {
		parts = append(parts, "-L "+req.LoginShell)
	}
	return strings.Join(parts, " ")
}

// Jobs implements lsf.Client.
func (c *Client) Jobs(ctx context.Context, ids []string) ([]lsf.ListingEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, c.initErr
	}
	entries := make([]lsf.ListingEntry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ps, err := c.session.JobPs(id)
		if err != nil {
			if isInvalidJob(err) {
				continue
			}
			return nil, clientError(err)
		}
		entries = append(entries, lsf.ListingEntry{JobID: id, StatusWord: statusWord(ps)})
	}
	return entries, nil
}

// Job implements lsf.Client. DRMAA exposes no execution hosts, so only the
// status word is filled in.
func (c *Client) Job(ctx context.Context, id string) (*lsf.JobDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, c.initErr
	}
	ps, err := c.session.JobPs(id)
	if err != nil {
		if isInvalidJob(err) {
			return nil, fmt.Errorf("job %s: %w", id, lsf.ErrJobNotFound)
		}
		return nil, clientError(err)
	}
	return &lsf.JobDetails{JobID: id, StatusWord: statusWord(ps)}, nil
}

// Kill implements lsf.Client.
func (c *Client) Kill(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return c.initErr
	}
	if err := c.session.Control(id, drmaa.Terminate); err != nil {
		if isInvalidJob(err) {
			return fmt.Errorf("job %s: %w", id, lsf.ErrJobNotFound)
		}
		return clientError(err)
	}
	return nil
}

// Close implements lsf.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Exit()
	c.session = nil
	if err != nil {
		return clientError(err)
	}
	return nil
}

// statusWord maps DRMAA program states onto the LSF status vocabulary.
func statusWord(ps drmaa.PsType) string {
	switch ps {
	case drmaa.PsQueuedActive:
		return "PEND"
	case drmaa.PsSystemOnHold, drmaa.PsUserOnHold, drmaa.PsUserSystemOnHold:
		return "PSUSP"
	case drmaa.PsRunning:
		return "RUN"
	case drmaa.PsSystemSuspended:
		return "SSUSP"
	case drmaa.PsUserSuspended, drmaa.PsUserSystemSuspended:
		return "USUSP"
	case drmaa.PsDone:
		return "DONE"
	case drmaa.PsFailed:
		return "EXIT"
	default:
		return "UNKWN"
	}
}

func clientError(err error) error {
	if de, ok := asDrmaaError(err); ok {
		return &lsf.ClientError{Code: int(de.ID), Message: de.Message}
	}
	return err
}

func isInvalidJob(err error) bool {
	de, ok := asDrmaaError(err)
	return ok && de.ID == drmaa.InvalidJob
}

// asDrmaaError accepts both the value and pointer forms the library returns.
func asDrmaaError(err error) (drmaa.Error, bool) {
	var de drmaa.Error
	if errors.As(err, &de) {
		return de, true
	}
	var dp *drmaa.Error
	if errors.As(err, &dp) && dp != nil {
		return *dp, true
	}
	return drmaa.Error{}, false
}
