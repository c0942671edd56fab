package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteHTTPHidesInternalCause(t *testing.T) {
	cause := errors.New("connection refused")
	rec := httptest.NewRecorder()

	Internal("failed to refresh dashboard").WithInternal(cause).WriteHTTP(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL", body["error"]["code"])
	assert.Equal(t, "failed to refresh dashboard", body["error"]["message"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := ServiceUnavailable("source down").WithInternal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SERVICE_UNAVAILABLE")
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("dashboard")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "dashboard not found", err.Message)
}
