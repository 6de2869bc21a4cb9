package lsftest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/3leaps/lsfq/pkg/lsf"
)

// Client is an in-memory lsf.Client. Jobs it hands out start as PEND.
// It is safe for concurrent use.
type Client struct {
	// User is reported as the owner of every listed job.
	User string

	// NextID returns the id for the next submission. Default: sequential
	// ids starting at 1000.
	NextID func() string

	ReadyErr  error
	SubmitErr error
	JobsErr   error
	KillErr   error
	CloseErr  error

	mu         sync.Mutex
	seq        int
	statuses   map[string]string
	hosts      map[string][]string
	submitted  []*lsf.SubmitRequest
	killed     []string
	jobsCalls  int
	closeCalls int
}

var _ lsf.Client = (*Client)(nil)

// NewClient returns an empty client.
func NewClient() *Client {
	return &Client{User: "alice", statuses: make(map[string]string), hosts: make(map[string][]string)}
}

// Ready implements lsf.Client.
func (c *Client) Ready() error { return c.ReadyErr }

// Submit implements lsf.Client.
func (c *Client) Submit(ctx context.Context, req *lsf.SubmitRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return "", c.SubmitErr
	}
	var id string
	if c.NextID != nil {
		id = c.NextID()
	} else {
		id = fmt.Sprintf("%d", 1000+c.seq)
		c.seq++
	}
	c.statuses[id] = "PEND"
	copied := *req
	c.submitted = append(c.submitted, &copied)
	return id, nil
}

// Jobs implements lsf.Client. It lists every job it knows, ignoring ids, so
// callers must do their own filtering.
func (c *Client) Jobs(ctx context.Context, _ []string) ([]lsf.ListingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsCalls++
	if c.JobsErr != nil {
		return nil, c.JobsErr
	}
	ids := make([]string, 0, len(c.statuses))
	for id := range c.statuses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]lsf.ListingEntry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, lsf.ListingEntry{JobID: id, User: c.User, StatusWord: c.statuses[id]})
	}
	return entries, nil
}

// Job implements lsf.Client.
func (c *Client) Job(ctx context.Context, id string) (*lsf.JobDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	word, ok := c.statuses[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, lsf.ErrJobNotFound)
	}
	return &lsf.JobDetails{JobID: id, StatusWord: word, ExecutionHosts: append([]string(nil), c.hosts[id]...)}, nil
}

// Kill implements lsf.Client.
func (c *Client) Kill(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = append(c.killed, id)
	if c.KillErr != nil {
		return c.KillErr
	}
	if _, ok := c.statuses[id]; !ok {
		return fmt.Errorf("job %s: %w", id, lsf.ErrJobNotFound)
	}
	c.statuses[id] = "EXIT"
	return nil
}

// Close implements lsf.Client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	return c.CloseErr
}

// SetStatus sets the native status word reported for id.
func (c *Client) SetStatus(id, word string) {
	c.mu.Lock()
	c.statuses[id] = word
	c.mu.Unlock()
}

// SetHosts sets the execution hosts reported for id.
func (c *Client) SetHosts(id string, hosts ...string) {
	c.mu.Lock()
	c.hosts[id] = hosts
	c.mu.Unlock()
}

// Forget drops id as if the batch system purged it.
func (c *Client) Forget(id string) {
	c.mu.Lock()
	delete(c.statuses, id)
	delete(c.hosts, id)
	c.mu.Unlock()
}

// Submitted returns the recorded submissions.
func (c *Client) Submitted() []*lsf.SubmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*lsf.SubmitRequest(nil), c.submitted...)
}

// Killed returns the ids passed to Kill.
func (c *Client) Killed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.killed...)
}

// JobsCalls returns how many times Jobs was called.
func (c *Client) JobsCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobsCalls
}

// CloseCalls returns how many times Close was called.
func (c *Client) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
