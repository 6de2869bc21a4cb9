package match

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

// Filter evaluates whether a job record passes filter criteria.
type Filter interface {
	Match(rec *jobregistry.JobRecord) bool

	// String returns a human-readable description of the filter.
	String() string
}

// FilterConfig holds filter criteria from CLI flags or query parameters.
type FilterConfig struct {
	// Names are glob patterns the job name must match (at least one).
	Names []string `json:"names,omitempty" yaml:"names,omitempty"`

	// ExcludeNames are glob patterns the job name must not match.
	ExcludeNames []string `json:"exclude_names,omitempty" yaml:"exclude_names,omitempty"`

	// Statuses restricts records to these statuses. "submit_failed" selects
	// records the batch system never accepted.
	Statuses []string `json:"statuses,omitempty" yaml:"statuses,omitempty"`

	// Created specifies a creation time range.
	Created *DateFilterConfig `json:"created,omitempty" yaml:"created,omitempty"`

	// CommandRegex is applied to the command line.
	CommandRegex string `json:"command_regex,omitempty" yaml:"command_regex,omitempty"`
}

// DateFilterConfig specifies a time range.
type DateFilterConfig struct {
	// After is inclusive. Supports "2026-10-19" or RFC3339.
	After string `json:"after,omitempty" yaml:"after,omitempty"`

	// Before is exclusive. Supports "2026-10-19" or RFC3339.
	Before string `json:"before,omitempty" yaml:"before,omitempty"`
}

// StatusSubmitFailed selects records without an external id.
const StatusSubmitFailed = "submit_failed"

// Filter errors.
var (
	ErrInvalidDate   = errors.New("invalid date value")
	ErrInvalidRegex  = errors.New("invalid regex pattern")
	ErrInvalidStatus = errors.New("invalid status")
)

// NameFilter filters records by job name glob.
type NameFilter struct {
	m *Matcher
}

// NewNameFilter returns nil when no patterns are given.
func NewNameFilter(includes, excludes []string) (*NameFilter, error) {
	if len(includes) == 0 && len(excludes) == 0 {
		return nil, nil
	}
	m, err := New(Config{Includes: includes, Excludes: excludes})
	if err != nil {
		return nil, err
	}
	return &NameFilter{m: m}, nil
}

func (f *NameFilter) Match(rec *jobregistry.JobRecord) bool {
	return f.m.Match(rec.Name)
}

func (f *NameFilter) String() string {
	s := "name: " + strings.Join(f.m.IncludePatterns(), "|")
	if exc := f.m.ExcludePatterns(); len(exc) > 0 {
		s += " excluding " + strings.Join(exc, "|")
	}
	return s
}

// StatusFilter filters records by status.
type StatusFilter struct {
	statuses map[string]struct{}
}

// NewStatusFilter returns nil when no statuses are given.
func NewStatusFilter(statuses []string) (*StatusFilter, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	f := &StatusFilter{statuses: make(map[string]struct{}, len(statuses))}
	for _, raw := range statuses {
		s := strings.ToLower(strings.TrimSpace(raw))
		if s != StatusSubmitFailed && !lsf.JobStatus(s).Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
		}
		f.statuses[s] = struct{}{}
	}
	return f, nil
}

func (f *StatusFilter) Match(rec *jobregistry.JobRecord) bool {
	key := string(rec.Status)
	if rec.ExternalID == "" && rec.LastError != "" {
		key = StatusSubmitFailed
	}
	_, ok := f.statuses[key]
	return ok
}

func (f *StatusFilter) String() string {
	names := make([]string, 0, len(f.statuses))
	for s := range f.statuses {
		names = append(names, s)
	}
	sort.Strings(names)
	return "status: " + strings.Join(names, "|")
}

// DateFilter filters records by creation time.
type DateFilter struct {
	after  time.Time // zero means no after constraint
	before time.Time // zero means no before constraint
}

// NewDateFilter creates a date filter from config.
// Returns nil if no date constraints are specified.
func NewDateFilter(cfg *DateFilterConfig) (*DateFilter, error) {
	if cfg == nil || (cfg.After == "" && cfg.Before == "") {
		return nil, nil
	}

	f := &DateFilter{}
	if cfg.After != "" {
		t, err := ParseDate(cfg.After)
		if err != nil {
			return nil, fmt.Errorf("after date: %w", err)
		}
		f.after = t
	}
	if cfg.Before != "" {
		t, err := ParseDate(cfg.Before)
		if err != nil {
			return nil, fmt.Errorf("before date: %w", err)
		}
		f.before = t
	}

	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}
	return f, nil
}

func (f *DateFilter) Match(rec *jobregistry.JobRecord) bool {
	if !f.after.IsZero() && rec.CreatedAt.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !rec.CreatedAt.Before(f.before) {
		return false
	}
	return true
}

func (f *DateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("created: %s to %s", f.after.Format("2006-01-02"), f.before.Format("2006-01-02"))
	case !f.after.IsZero():
		return fmt.Sprintf("created: on/after %s", f.after.Format("2006-01-02"))
	default:
		return fmt.Sprintf("created: before %s", f.before.Format("2006-01-02"))
	}
}

// RegexFilter filters records by command line.
type RegexFilter struct {
	re *regexp.Regexp
}

// NewRegexFilter returns nil for an empty pattern.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	return &RegexFilter{re: re}, nil
}

func (f *RegexFilter) Match(rec *jobregistry.JobRecord) bool {
	return f.re.MatchString(strings.TrimSpace(rec.Command + " " + strings.Join(rec.Args, " ")))
}

func (f *RegexFilter) String() string {
	return "command: /" + f.re.String() + "/"
}

// CompositeFilter combines multiple filters with AND logic.
type CompositeFilter struct {
	filters []Filter
}

// NewFilterFromConfig creates a CompositeFilter from FilterConfig.
// Returns nil if no filters are configured; a nil filter matches everything.
func NewFilterFromConfig(cfg *FilterConfig) (*CompositeFilter, error) {
	if cfg == nil {
		return nil, nil
	}
	var filters []Filter

	nameFilter, err := NewNameFilter(cfg.Names, cfg.ExcludeNames)
	if err != nil {
		return nil, err
	}
	if nameFilter != nil {
		filters = append(filters, nameFilter)
	}

	statusFilter, err := NewStatusFilter(cfg.Statuses)
	if err != nil {
		return nil, err
	}
	if statusFilter != nil {
		filters = append(filters, statusFilter)
	}

	dateFilter, err := NewDateFilter(cfg.Created)
	if err != nil {
		return nil, err
	}
	if dateFilter != nil {
		filters = append(filters, dateFilter)
	}

	regexFilter, err := NewRegexFilter(cfg.CommandRegex)
	if err != nil {
		return nil, err
	}
	if regexFilter != nil {
		filters = append(filters, regexFilter)
	}

	if len(filters) == 0 {
		return nil, nil
	}
	return &CompositeFilter{filters: filters}, nil
}

// Match returns true if all filters pass.
func (f *CompositeFilter) Match(rec *jobregistry.JobRecord) bool {
	if f == nil {
		return true
	}
	for _, filter := range f.filters {
		if !filter.Match(rec) {
			return false
		}
	}
	return true
}

// Apply returns the records that pass the filter, in order.
func (f *CompositeFilter) Apply(records []jobregistry.JobRecord) []jobregistry.JobRecord {
	if f == nil {
		return records
	}
	out := make([]jobregistry.JobRecord, 0, len(records))
	for i := range records {
		if f.Match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

func (f *CompositeFilter) String() string {
	if f == nil || len(f.filters) == 0 {
		return "no filters"
	}
	parts := make([]string, len(f.filters))
	for i, filter := range f.filters {
		parts[i] = filter.String()
	}
	return strings.Join(parts, ", ")
}

// Filters returns the underlying filters.
func (f *CompositeFilter) Filters() []Filter {
	if f == nil {
		return nil
	}
	return f.filters
}

// ParseDate parses "2006-01-02" or RFC3339 timestamps as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}
