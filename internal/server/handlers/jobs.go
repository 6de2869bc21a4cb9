package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/internal/server/middleware"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/match"
)

// JobsHandler serves job records from the registry, refreshing them through
// the tracker.
type JobsHandler struct {
	tracker *jobregistry.Tracker
	logger  *zap.Logger
}

func NewJobsHandler(tracker *jobregistry.Tracker, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{tracker: tracker, logger: logger}
}

// JobListResponse is the body of GET /jobs.
type JobListResponse struct {
	Jobs  []jobregistry.JobRecord `json:"jobs"`
	Count int                     `json:"count"`
}

// List handles GET /jobs. With refresh=true every non-terminal record is
// refreshed first. The name, exclude_name, status, since, until and command
// parameters filter the result.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		records []jobregistry.JobRecord
		err     error
	)
	filter, err := match.NewFilterFromConfig(filterFromQuery(r.URL.Query()))
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if refresh {
		records, err = h.tracker.RefreshAll(r.Context())
		if err != nil && !lsf.IsTransientQuery(err) {
			respondWithError(w, r, err)
			return
		}
		if err != nil {
			h.logger.Warn("Serving last known job statuses", zap.Error(err))
		}
	} else {
		records, err = h.tracker.Store().List()
		if err != nil {
			respondWithError(w, r, err)
			return
		}
	}
	records = filter.Apply(records)
	if records == nil {
		records = []jobregistry.JobRecord{}
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: records, Count: len(records)})
}

// filterFromQuery reads repeated or comma-separated filter parameters.
func filterFromQuery(q url.Values) *match.FilterConfig {
	cfg := &match.FilterConfig{
		Names:        splitValues(q["name"]),
		ExcludeNames: splitValues(q["exclude_name"]),
		Statuses:     splitValues(q["status"]),
		CommandRegex: q.Get("command"),
	}
	if since, until := q.Get("since"), q.Get("until"); since != "" || until != "" {
		cfg.Created = &match.DateFilterConfig{After: since, Before: until}
	}
	return cfg
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Get handles GET /jobs/{id}. The id may be a record id, an external id or a
// unique record id prefix. A transient listing failure still returns the
// record with its last known status and last_error set.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.tracker.Store().Resolve(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	rec, err = h.tracker.Refresh(r.Context(), rec)
	if err != nil && !lsf.IsTransientQuery(err) {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
