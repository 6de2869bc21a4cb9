package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lsfq/internal/server/middleware"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/lsf/lsftest"
)

func newJobsRouter(t *testing.T) (http.Handler, *jobregistry.Tracker, *lsftest.Client) {
	t.Helper()
	client := lsftest.NewClient()
	cfg := lsf.DefaultConfig()
	cfg.TempDir = t.TempDir()
	d, err := lsf.New(cfg, lsf.WithClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	tracker := jobregistry.NewTracker(jobregistry.NewStore(t.TempDir()), d, nil)
	h := NewJobsHandler(tracker, nil)
	r := chi.NewRouter()
	r.Get("/jobs", h.List)
	r.Get("/jobs/{id}", h.Get)
	return r, tracker, client
}

func TestJobsHandler_GetRefreshesStatus(t *testing.T) {
	router, tracker, client := newJobsRouter(t)
	rec, err := tracker.Submit(context.Background(), jobregistry.SubmitSpec{Command: "/opt/run.sh", CPUCount: 1, Name: "sim"})
	require.NoError(t, err)
	client.SetStatus(rec.ExternalID, "RUN")
	client.SetHosts(rec.ExternalID, "node01")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/"+rec.ExternalID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got jobregistry.JobRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, rec.RecordID, got.RecordID)
	assert.Equal(t, lsf.StatusRunning, got.Status)
	assert.Equal(t, []string{"node01"}, got.ExecutionHosts)
}

func TestJobsHandler_GetUnknownIsNotFound(t *testing.T) {
	router, _, _ := newJobsRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/424242", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestJobsHandler_GetTransientFailureServesLastKnown(t *testing.T) {
	router, tracker, client := newJobsRouter(t)
	rec, err := tracker.Submit(context.Background(), jobregistry.SubmitSpec{Command: "/opt/run.sh", CPUCount: 1})
	require.NoError(t, err)
	client.JobsErr = errors.New("mbatchd not responding")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs/"+rec.RecordID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got jobregistry.JobRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, lsf.StatusPending, got.Status)
	assert.Contains(t, got.LastError, "mbatchd not responding")
}

func TestJobsHandler_List(t *testing.T) {
	router, tracker, client := newJobsRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var empty JobListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Jobs)

	rec, err := tracker.Submit(context.Background(), jobregistry.SubmitSpec{Command: "/opt/run.sh", CPUCount: 1})
	require.NoError(t, err)
	client.SetStatus(rec.ExternalID, "DONE")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/jobs?refresh=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list JobListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, lsf.StatusDone, list.Jobs[0].Status)
}

func TestJobsHandler_ListFilters(t *testing.T) {
	router, tracker, client := newJobsRouter(t)
	ctx := context.Background()
	sim, err := tracker.Submit(ctx, jobregistry.SubmitSpec{Command: "/opt/sim/run.sh", CPUCount: 1, Name: "sim-1"})
	require.NoError(t, err)
	_, err = tracker.Submit(ctx, jobregistry.SubmitSpec{Command: "/opt/asm/assemble", CPUCount: 1, Name: "asm"})
	require.NoError(t, err)
	client.SetStatus(sim.ExternalID, "DONE")

	get := func(target string) (int, JobListResponse) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		var body JobListResponse
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		}
		return w.Code, body
	}

	code, body := get("/jobs?name=sim-*")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, sim.RecordID, body.Jobs[0].RecordID)

	code, body = get("/jobs?refresh=true&status=done,exited")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, lsf.StatusDone, body.Jobs[0].Status)

	code, body = get("/jobs?exclude_name=sim-*&command=assemble")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, body.Count)

	code, _ = get("/jobs?status=zombie")
	assert.Equal(t, http.StatusBadRequest, code)
}
