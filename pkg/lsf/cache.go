package lsf

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// DefaultRefreshInterval is the minimum time between two bulk listings.
const DefaultRefreshInterval = 10 * time.Second

// ListFunc produces a bulk status listing. knownIDs is the set of ids the
// cache is responsible for; listers may use it to narrow the query.
type ListFunc func(ctx context.Context, knownIDs []string) ([]ListingEntry, error)

// StatusCache maps external job ids submitted by one driver to their last
// observed status.
//
// Contents are replaced wholesale on each successful refresh. At most one
// refresh runs at a time; callers arriving during a refresh wait for it and
// share its outcome.
type StatusCache struct {
	interval time.Duration
	now      func() time.Time
	sem      chan struct{}

	mu            sync.RWMutex
	statuses      map[string]JobStatus
	known         map[string]struct{}
	lastAttempt   time.Time
	lastRefreshed time.Time
	lastErr       error
	generation    uint64
}

// NewStatusCache creates an empty cache. A non-positive interval uses
// DefaultRefreshInterval; a nil clock uses time.Now.
func NewStatusCache(interval time.Duration, now func() time.Time) *StatusCache {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if now == nil {
		now = time.Now
	}
	return &StatusCache{
		interval: interval,
		now:      now,
		sem:      make(chan struct{}, 1),
		statuses: make(map[string]JobStatus),
		known:    make(map[string]struct{}),
	}
}

// Register adds id to the known set.
func (c *StatusCache) Register(id string) {
	c.mu.Lock()
	c.known[id] = struct{}{}
	c.mu.Unlock()
}

// Known reports whether id is in the known set.
func (c *StatusCache) Known(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.known[id]
	return ok
}

// KnownIDs returns the known set in sorted order.
func (c *StatusCache) KnownIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.known))
	for id := range c.known {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Size returns the number of known ids.
func (c *StatusCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.known)
}

// Lookup returns the last observed status of id.
func (c *StatusCache) Lookup(id string) (JobStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.statuses[id]
	return s, ok
}

// LastError returns the error of the most recent refresh, or nil if it
// succeeded.
func (c *StatusCache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastRefreshed returns the time of the last successful refresh.
func (c *StatusCache) LastRefreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefreshed
}

// Stale reports whether more than one interval has passed since the last
// refresh attempt.
func (c *StatusCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

func (c *StatusCache) staleLocked() bool {
	return c.lastAttempt.IsZero() || c.now().Sub(c.lastAttempt) > c.interval
}

// Refresh lists the batch system and rebuilds the cache when stale, or
// unconditionally when force is set. It returns the error of the refresh
// whose outcome the caller observed; on error the previous contents are
// kept. A refresh interrupted by the caller's ctx is not recorded.
func (c *StatusCache) Refresh(ctx context.Context, list ListFunc, force bool) (refreshed bool, err error) {
	c.mu.RLock()
	startGen := c.generation
	if !force && !c.staleLocked() {
		err = c.lastErr
		c.mu.RUnlock()
		return false, err
	}
	c.mu.RUnlock()

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-c.sem }()

	c.mu.RLock()
	if c.generation != startGen {
		err = c.lastErr
		c.mu.RUnlock()
		return false, err
	}
	c.mu.RUnlock()

	known := c.KnownIDs()
	entries, listErr := list(ctx, known)
	if listErr == nil {
		var next map[string]JobStatus
		next, listErr = buildStatuses(entries, known)
		if listErr == nil {
			c.mu.Lock()
			c.statuses = next
			c.lastAttempt = c.now()
			c.lastRefreshed = c.lastAttempt
			c.lastErr = nil
			c.generation++
			c.mu.Unlock()
			return true, nil
		}
	}

	// Cancellation by the caller is not an outcome of the batch system.
	if ctx.Err() != nil {
		return false, listErr
	}

	c.mu.Lock()
	c.lastAttempt = c.now()
	c.lastErr = listErr
	c.generation++
	c.mu.Unlock()
	return true, listErr
}

func buildStatuses(entries []ListingEntry, known []string) (map[string]JobStatus, error) {
	keep := make(map[string]struct{}, len(known))
	for _, id := range known {
		keep[id] = struct{}{}
	}
	next := make(map[string]JobStatus, len(keep))
	for _, e := range entries {
		if _, ok := keep[e.JobID]; !ok {
			continue
		}
		s, err := ParseStatusWord(e.StatusWord)
		if err != nil {
			var lerr *Error
			if errors.As(err, &lerr) {
				lerr.Op = "refresh"
				lerr.JobID = e.JobID
			}
			return nil, err
		}
		next[e.JobID] = s
	}
	return next, nil
}
