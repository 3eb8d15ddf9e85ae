/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
)

func TestRespondCodeAndJSON(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusCreated, map[string]string{"url": "/a?b=<c>"}, nil)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.Equal(t, `{"url":"/a?b=<c>"}`, resp.Body.String())
	})

	t.Run("nil body", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Empty(t, resp.Body.String())
	})

	t.Run("marshaling error", func(t *testing.T) {
		logger := logtest.NewRecorder()
		resp := httptest.NewRecorder()
		RespondJSON(resp, make(chan int), logger)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		_, found := logger.FindEntry("error while marshaling json for response body")
		require.True(t, found)
	})
}

func TestRespondDetail(t *testing.T) {
	MustInitAndRegisterMetrics("test")
	defer UnregisterMetrics()

	resp := httptest.NewRecorder()
	RespondTooManyRequests(resp, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.JSONEq(t, `{"detail": "Rate limit exceeded. Please try again later."}`, resp.Body.String())

	resp = httptest.NewRecorder()
	RespondInternalError(resp, nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"detail": "Internal error."}`, resp.Body.String())

	require.Equal(t, 1, int(testutil.ToFloat64(metricsResponseErrors.WithLabelValues("429"))))
	require.Equal(t, 1, int(testutil.ToFloat64(metricsResponseErrors.WithLabelValues("500"))))
}
