package jobregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound indicates no record matched.
var ErrNotFound = errors.New("job record not found")

// ErrAmbiguous indicates a prefix matched more than one record.
var ErrAmbiguous = errors.New("job id prefix is ambiguous")

// Store persists and loads JobRecords from an on-disk directory.
//
// Directory layout:
//
//	<root>/<record_id>/job.json
//
// Root is expected to be under the user's state dir.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) JobDir(recordID string) string {
	return filepath.Join(s.root, recordID)
}

func (s *Store) JobPath(recordID string) string {
	return filepath.Join(s.JobDir(recordID), "job.json")
}

func (s *Store) ensureRoot() error {
	if strings.TrimSpace(s.root) == "" {
		return fmt.Errorf("job registry root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Write atomically replaces the record's job.json.
func (s *Store) Write(record *JobRecord) error {
	if record == nil {
		return fmt.Errorf("job record is nil")
	}
	recordID := strings.TrimSpace(record.RecordID)
	if recordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}

	jobDir := s.JobDir(recordID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("create job dir: %w", err)
	}

	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(jobDir, "job.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp job file: %w", err)
	}

	if err := os.Rename(tmpName, s.JobPath(recordID)); err != nil {
		return fmt.Errorf("rename job file: %w", err)
	}
	return nil
}

func (s *Store) Get(recordID string) (*JobRecord, error) {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return nil, fmt.Errorf("record_id is required")
	}
	b, err := os.ReadFile(s.JobPath(recordID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", recordID, ErrNotFound)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("job.json is empty")
	}

	var record JobRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse job.json: %w", err)
	}
	return &record, nil
}

// List returns all readable records, newest first.
func (s *Store) List() ([]JobRecord, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read jobs root: %w", err)
	}

	out := make([]JobRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.Get(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Resolve finds a record by record id, external id, or a unique record id
// prefix.
func (s *Store) Resolve(ref string) (*JobRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("job id is required")
	}
	records, err := s.List()
	if err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].RecordID == ref || records[i].ExternalID == ref {
			return &records[i], nil
		}
	}

	var match *JobRecord
	for i := range records {
		if strings.HasPrefix(records[i].RecordID, ref) {
			if match != nil {
				return nil, fmt.Errorf("%s: %w", ref, ErrAmbiguous)
			}
			match = &records[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return match, nil
}

// Delete removes a record and its directory.
func (s *Store) Delete(recordID string) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return fmt.Errorf("record_id is required")
	}
	if err := os.RemoveAll(s.JobDir(recordID)); err != nil {
		return fmt.Errorf("remove job dir: %w", err)
	}
	return nil
}

// Prune deletes terminal records that ended before cutoff. With dryRun set
// nothing is removed. It returns the records selected.
func (s *Store) Prune(cutoff time.Time, dryRun bool) ([]JobRecord, error) {
	records, err := s.List()
	if err != nil {
		return nil, err
	}
	var pruned []JobRecord
	for _, r := range records {
		if !r.Terminal() {
			continue
		}
		if recordEndTime(r).After(cutoff) {
			continue
		}
		if !dryRun {
			if err := s.Delete(r.RecordID); err != nil {
				return pruned, err
			}
		}
		pruned = append(pruned, r)
	}
	return pruned, nil
}

func recordEndTime(r JobRecord) time.Time {
	if r.EndedAt != nil {
		return r.EndedAt.UTC()
	}
	if r.UpdatedAt != nil {
		return r.UpdatedAt.UTC()
	}
	return r.CreatedAt.UTC()
}
