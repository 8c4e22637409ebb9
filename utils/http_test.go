package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusOK, map[string]string{"message": "test"})
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]string
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "test", response["message"])
	})

	t.Run("nil data", func(t *testing.T) {
		w := httptest.NewRecorder()

		err := WriteJSON(w, http.StatusNoContent, nil)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestWriteOK(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteOK(w, map[string]string{"sub": "user-123"}))

	assert.Equal(t, http.StatusOK, w.Code)
	var response SuccessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	dataMap := response.Data.(map[string]any)
	assert.Equal(t, "user-123", dataMap["sub"])
}

func TestWriteUnauthorized(t *testing.T) {
	t.Run("default message", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, ""))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer realm="microkit"`, w.Header().Get("WWW-Authenticate"))
		var response ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "unauthorized", response.Error)
		assert.Equal(t, "Authentication required", response.Message)
	})

	t.Run("custom message", func(t *testing.T) {
		w := httptest.NewRecorder()

		require.NoError(t, WriteUnauthorized(w, "Invalid or expired token"))

		var response ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Invalid or expired token", response.Message)
	})
}

func TestWriteForbidden(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteForbidden(w, ""))

	assert.Equal(t, http.StatusForbidden, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "forbidden", response.Error)
	assert.Equal(t, "Access forbidden", response.Message)
}

func TestWriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteNotFound(w, ""))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not_found", response.Error)
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, WriteInternalServerError(w, "Authentication not configured"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "internal_error", response.Error)
	assert.Equal(t, "Authentication not configured", response.Message)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		status    int
		wantError string
	}{
		{http.StatusBadRequest, "bad_request"},
		{http.StatusUnauthorized, "unauthorized"},
		{http.StatusForbidden, "forbidden"},
		{http.StatusNotFound, "not_found"},
		{http.StatusBadGateway, "bad_gateway"},
		{http.StatusServiceUnavailable, "service_unavailable"},
		{http.StatusTeapot, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			w := httptest.NewRecorder()

			err := WriteError(w, tt.status, "message", map[string]any{"key": "value"})
			require.NoError(t, err)

			assert.Equal(t, tt.status, w.Code)
			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantError, response.Error)
			assert.Equal(t, "value", response.Details["key"])
		})
	}
}
