package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovalev/taskgw/internal/observability"
	"github.com/dkovalev/taskgw/internal/util"
)

func TestRecovery_ConvertsPanicToJSON500(t *testing.T) {
	handler := Recovery(observability.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/tasks", nil)
	r = r.WithContext(util.ContextWithCorrelationID(r.Context(), "corr-panic"))

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp util.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, "corr-panic", resp.CorrelationID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestRecovery_PassesThroughNormally(t *testing.T) {
	handler := Recovery(observability.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
}
