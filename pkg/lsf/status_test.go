package lsf

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatusWord(t *testing.T) {
	want := map[string]JobStatus{
		"PEND":  StatusPending,
		"PSUSP": StatusPending,
		"RUN":   StatusRunning,
		"SSUSP": StatusRunning,
		"USUSP": StatusRunning,
		"DONE":  StatusDone,
		"PDONE": StatusDone,
		"EXIT":  StatusExited,
		"PERR":  StatusExited,
		"UNKWN": StatusExited,
	}
	for word, status := range want {
		got, err := ParseStatusWord(word)
		require.NoError(t, err, word)
		assert.Equal(t, status, got, word)
	}

	for _, word := range []string{"run", "ZOMBIE", ""} {
		_, err := ParseStatusWord(word)
		assert.True(t, IsConfiguration(err), word)
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusExited.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusNotActive.IsTerminal())
	assert.False(t, JobStatus("weird").Valid())
}

func TestJobHandle_Immutable(t *testing.T) {
	var zero JobHandle
	assert.True(t, zero.IsZero())

	h := NewJobHandle("42").withHosts([]string{"a", "b"})
	hosts := h.ExecutionHosts()
	hosts[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, h.ExecutionHosts())
	assert.Equal(t, "42", h.String())
}

func TestError_UnwrapsKindAndCause(t *testing.T) {
	cause := &ClientError{Code: 3, Message: "no such queue"}
	err := &Error{Op: "submit", Command: "bsub -q nope run.sh", ExitCode: 255, Kind: ErrSubmission, Err: cause}

	assert.True(t, IsSubmissionFailure(err))
	var ce *ClientError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Code)
	assert.Equal(t, `submit: submission failed: batch client error 3: no such queue (command "bsub -q nope run.sh", exit code 255)`, err.Error())
}

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeSubmit("shell", nil)
	m.observeSubmit("shell", errors.New("x"))
	m.observeKill(nil)
	m.setKnown(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("shell", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("shell", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.kills.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.knownJobs))

	var nilMetrics *Metrics
	nilMetrics.observeSubmit("shell", nil)
}
