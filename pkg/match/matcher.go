// Package match selects job records by name glob, status, creation time
// and command pattern.
package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates glob patterns against job names.
//
// A Matcher is configured with include and exclude patterns:
//   - Include patterns: the name must match at least one (none means any)
//   - Exclude patterns: the name must not match any
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// Config configures a Matcher.
type Config struct {
	Includes []string
	Excludes []string
}

// Errors returned by Matcher operations.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher, validating every pattern.
func New(cfg Config) (*Matcher, error) {
	m := &Matcher{}
	for _, raw := range cfg.Includes {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		m.includes = append(m.includes, raw)
	}
	for _, raw := range cfg.Excludes {
		if !doublestar.ValidatePattern(raw) {
			return nil, &PatternError{Pattern: raw, Err: ErrInvalidPattern}
		}
		m.excludes = append(m.excludes, raw)
	}
	return m, nil
}

// Match reports whether name passes the include and exclude patterns.
func (m *Matcher) Match(name string) bool {
	if len(m.includes) > 0 {
		matched := false
		for _, inc := range m.includes {
			if matchPattern(inc, name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, exc := range m.excludes {
		if matchPattern(exc, name) {
			return false
		}
	}
	return true
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return len(m.includes) == 0 && len(m.excludes) == 0
}

// IncludePatterns returns the include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func matchPattern(pattern, name string) bool {
	matched, err := doublestar.Match(pattern, name)
	if err != nil {
		// validated in New
		return false
	}
	return matched
}
