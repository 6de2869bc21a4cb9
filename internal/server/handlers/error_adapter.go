package handlers

import (
	"errors"
	"net/http"

	"github.com/3leaps/lsfq/internal/server/middleware"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

// HTTPErrorResponder writes err as an HTTP response.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = defaultErrorResponder

// SetHTTPErrorResponder replaces the responder used by the handlers. Nil
// restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = defaultErrorResponder
	}
	httpErrorResponder = fn
}

func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	middleware.WriteError(w, r, status, code, err.Error(), nil)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, jobregistry.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, jobregistry.ErrAmbiguous):
		return http.StatusConflict, "AMBIGUOUS_JOB_ID"
	case lsf.IsInvalidArgument(err):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case lsf.IsTransientQuery(err):
		return http.StatusServiceUnavailable, "BATCH_SYSTEM_UNAVAILABLE"
	case lsf.IsConfiguration(err):
		return http.StatusInternalServerError, "CONFIGURATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
