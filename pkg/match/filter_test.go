package match

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

func records() []jobregistry.JobRecord {
	day := func(d int) time.Time { return time.Date(2026, 10, d, 9, 0, 0, 0, time.UTC) }
	return []jobregistry.JobRecord{
		{RecordID: "r1", ExternalID: "101", Name: "sim-1", Command: "/opt/sim/run.sh", Args: []string{"--steps", "10"}, Status: lsf.StatusRunning, CreatedAt: day(10)},
		{RecordID: "r2", ExternalID: "102", Name: "sim-2", Command: "/opt/sim/run.sh", Status: lsf.StatusDone, CreatedAt: day(15)},
		{RecordID: "r3", ExternalID: "103", Name: "asm", Command: "/opt/asm/assemble", Status: lsf.StatusExited, CreatedAt: day(18)},
		{RecordID: "r4", Name: "sim-3", Command: "/opt/sim/run.sh", Status: lsf.StatusNotActive, LastError: "submit: rejected", CreatedAt: day(19)},
	}
}

func ids(recs []jobregistry.JobRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.RecordID)
	}
	return out
}

func TestNewFilterFromConfig_Empty(t *testing.T) {
	f, err := NewFilterFromConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = NewFilterFromConfig(&FilterConfig{Created: &DateFilterConfig{}})
	require.NoError(t, err)
	assert.Nil(t, f)

	// A nil filter passes everything.
	assert.Len(t, f.Apply(records()), 4)
	assert.True(t, f.Match(&jobregistry.JobRecord{}))
	assert.Equal(t, "no filters", f.String())
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name string
		cfg  FilterConfig
		want []string
	}{
		{"name glob", FilterConfig{Names: []string{"sim-*"}}, []string{"r1", "r2", "r4"}},
		{"name exclude", FilterConfig{Names: []string{"sim-*"}, ExcludeNames: []string{"sim-3"}}, []string{"r1", "r2"}},
		{"status", FilterConfig{Statuses: []string{"done", "EXITED"}}, []string{"r2", "r3"}},
		{"submit failed", FilterConfig{Statuses: []string{StatusSubmitFailed}}, []string{"r4"}},
		{"created after", FilterConfig{Created: &DateFilterConfig{After: "2026-10-15"}}, []string{"r2", "r3", "r4"}},
		{"created range", FilterConfig{Created: &DateFilterConfig{After: "2026-10-11", Before: "2026-10-18"}}, []string{"r2"}},
		{"command regex", FilterConfig{CommandRegex: `--steps \d+`}, []string{"r1"}},
		{"combined", FilterConfig{Names: []string{"sim-*"}, Statuses: []string{"running", "done"}, CommandRegex: "^/opt/sim/"}, []string{"r1", "r2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFilterFromConfig(&tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, f)
			assert.Equal(t, tt.want, ids(f.Apply(records())))
		})
	}
}

func TestFilter_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  FilterConfig
		want error
	}{
		{"bad glob", FilterConfig{Names: []string{"[x"}}, ErrInvalidPattern},
		{"bad status", FilterConfig{Statuses: []string{"zombie"}}, ErrInvalidStatus},
		{"bad date", FilterConfig{Created: &DateFilterConfig{After: "yesterday"}}, ErrInvalidDate},
		{"inverted range", FilterConfig{Created: &DateFilterConfig{After: "2026-10-19", Before: "2026-10-01"}}, ErrInvalidDate},
		{"bad regex", FilterConfig{CommandRegex: "("}, ErrInvalidRegex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilterFromConfig(&tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFilter_String(t *testing.T) {
	f, err := NewFilterFromConfig(&FilterConfig{
		Names:    []string{"sim-*"},
		Statuses: []string{"running", "done"},
		Created:  &DateFilterConfig{After: "2026-10-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "name: sim-*, status: done|running, created: on/after 2026-10-01", f.String())
	assert.Len(t, f.Filters(), 3)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseDate("2026-10-19T10:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC), got)

	_, err = ParseDate("")
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = ParseDate("19/10/2026")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
