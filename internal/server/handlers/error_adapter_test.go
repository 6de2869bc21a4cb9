package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lsfq/internal/server/middleware"
	"github.com/3leaps/lsfq/pkg/jobregistry"
	"github.com/3leaps/lsfq/pkg/lsf"
)

func TestSetHTTPErrorResponder(t *testing.T) {
	// Save original
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	t.Run("sets custom responder", func(t *testing.T) {
		called := false
		customResponder := func(w http.ResponseWriter, r *http.Request, err error) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		}

		SetHTTPErrorResponder(customResponder)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		respondWithError(rec, req, assert.AnError)

		assert.True(t, called)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("nil resets to default", func(t *testing.T) {
		// Set a custom responder first
		SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusTeapot)
		})

		// Reset with nil
		SetHTTPErrorResponder(nil)

		req := httptest.NewRequest("GET", "/test", nil)
		rec := httptest.NewRecorder()
		respondWithError(rec, req, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestResetHTTPErrorResponder(t *testing.T) {
	// Save original
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	// Set a custom responder
	customCalled := false
	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		customCalled = true
	})

	// Reset to default
	ResetHTTPErrorResponder()

	// Verify it's reset (default responder is not our custom one)
	assert.False(t, customCalled)
	assert.NotNil(t, httpErrorResponder)
}

func TestRespondWithError(t *testing.T) {
	// Save original
	original := httpErrorResponder
	defer func() { httpErrorResponder = original }()

	called := false
	var capturedErr error

	SetHTTPErrorResponder(func(w http.ResponseWriter, r *http.Request, err error) {
		called = true
		capturedErr = err
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	respondWithError(rec, req, assert.AnError)

	assert.True(t, called)
	assert.Equal(t, assert.AnError, capturedErr)
}

func TestDefaultResponderStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("x: %w", jobregistry.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"ambiguous", fmt.Errorf("x: %w", jobregistry.ErrAmbiguous), http.StatusConflict, "AMBIGUOUS_JOB_ID"},
		{"invalid argument", &lsf.Error{Op: "kill", Kind: lsf.ErrInvalidArgument}, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"transient", &lsf.Error{Op: "refresh", Kind: lsf.ErrTransientQuery}, http.StatusServiceUnavailable, "BATCH_SYSTEM_UNAVAILABLE"},
		{"configuration", &lsf.Error{Op: "refresh", Kind: lsf.ErrConfiguration}, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			defaultErrorResponder(rec, httptest.NewRequest("GET", "/jobs/x", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
