/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/testutil"
)

func TestRequestID(t *testing.T) {
	var gotID, gotIntID string
	h := RequestIDWithOpts(RequestIDOpts{
		GenerateID:         func() string { return "generated" },
		GenerateInternalID: func() string { return "internal" },
	})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotID = GetRequestIDFromContext(r.Context())
		gotIntID = GetInternalRequestIDFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", "generated"},
		{"passed", "client-id-1", "client-id-1"},
		{"too long", strings.Repeat("x", maxRequestIDLength+1), "generated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			resp := httptest.NewRecorder()
			h.ServeHTTP(resp, req)
			require.Equal(t, tt.want, gotID)
			require.Equal(t, "internal", gotIntID)
			require.Equal(t, tt.want, resp.Header().Get("X-Request-ID"))
			require.Equal(t, "internal", resp.Header().Get("X-Int-Request-ID"))
		})
	}

	t.Run("xid by default", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(
			resp, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Len(t, resp.Header().Get("X-Request-ID"), 20)
	})
}

func TestRecovery(t *testing.T) {
	logger := logtest.NewRecorder()
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("oops") }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(NewContextWithLogger(req.Context(), logger))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"detail": "Internal error."}`, resp.Body.String())
	entry, found := logger.FindEntry("Panic: oops")
	require.True(t, found)
	_, found = entry.FindField("stack")
	require.True(t, found)

	require.Panics(t, func() {
		Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic(http.ErrAbortHandler) })).
			ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLogging(t *testing.T) {
	logger := logtest.NewRecorder()
	var ctxLoggerSet bool
	h := RequestID()(LoggingWithOpts(logger, LoggingOpts{ExcludedEndpoints: []string{"/healthz"}})(
		http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctxLoggerSet = GetLoggerFromContext(r.Context()) != nil
			if r.URL.Path == "/missing" {
				rw.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = rw.Write([]byte("hello"))
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stocks/AAPL", nil))
	require.True(t, ctxLoggerSet)
	require.Len(t, logger.Entries(), 1)
	entry := logger.Entries()[0]
	require.True(t, strings.HasPrefix(entry.Text, "response completed in"))
	status, found := entry.FindField("status")
	require.True(t, found)
	require.Equal(t, int64(http.StatusOK), status.Int)
	sent, found := entry.FindField("bytes_sent")
	require.True(t, found)
	require.Equal(t, int64(5), sent.Int)
	reqID, found := entry.FindField("request_id")
	require.True(t, found)
	require.NotEmpty(t, string(reqID.Bytes))

	logger.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Empty(t, logger.Entries(), "excluded endpoint is not logged")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Len(t, logger.Entries(), 1)
}

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector()
	router := chi.NewRouter()
	router.Use(HTTPRequestMetrics(collector, GetChiRoutePattern))
	router.Get("/api/stocks/{symbol}", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusAccepted)
	})

	for _, symbol := range []string{"AAPL", "BBRI", "TLKM"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stocks/"+symbol, nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Equal(t, 2, promtestutil.CollectAndCount(collector.Durations))
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues(http.MethodGet, "/api/stocks/{symbol}", "202"), 3)
	testutil.RequireSamplesCountInHistogram(t,
		collector.Durations.WithLabelValues(http.MethodGet, "unmatched", "404"), 1)
	require.Equal(t, 0, int(promtestutil.ToFloat64(collector.InFlight)))
}
