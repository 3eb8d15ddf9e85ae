/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/memoize"
	"github.com/acronis/go-admission/resultcache"
	"github.com/acronis/go-admission/testutil"
)

func TestStocksHandler(t *testing.T) {
	predictionLatency = time.Millisecond
	defer func() { predictionLatency = 200 * time.Millisecond }()

	cache := resultcache.New()
	router := chi.NewRouter()
	router.Get("/api/stocks/{symbol}", newStocksHandler(cache, time.Minute, logtest.NewRecorder()).ServeHTTP)

	get := func(path string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		return resp
	}

	resp := get("/api/stocks/bbca")
	require.Equal(t, http.StatusOK, resp.Code)
	var first prediction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &first))
	require.Equal(t, "BBCA", first.Symbol)
	require.Equal(t, defaultHorizon, first.Horizon)
	require.Contains(t, predictionActions[:], first.Action)

	// The second call is served from the cache, so generation time is the same.
	resp = get("/api/stocks/BBCA")
	require.Equal(t, http.StatusOK, resp.Code)
	var second prediction
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &second))
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.Len())

	require.Equal(t, http.StatusOK, get("/api/stocks/BBCA?horizon=1w").Code)
	require.Equal(t, 2, cache.Len())

	resp = get("/api/stocks/not-a-symbol")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.JSONEq(t, `{"detail":"Invalid stock symbol."}`, resp.Body.String())
}

func TestStocksHandler_PredictionErrors(t *testing.T) {
	h := &stocksHandler{predict: func(context.Context, memoize.Args) (prediction, error) {
		return prediction{}, context.Canceled
	}}
	router := chi.NewRouter()
	router.Get("/api/stocks/{symbol}", h.ServeHTTP)

	// A canceled computation is an internal error while the client is still waiting.
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/stocks/BBCA", nil))
	testutil.RequireDetailInRecorder(t, resp, http.StatusInternalServerError, "Internal error.")

	// Nothing is written for a client that has gone away.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/stocks/BBCA", nil).WithContext(ctx))
	require.False(t, resp.Flushed)
	require.Empty(t, resp.Body.String())
	require.Empty(t, resp.Header().Get("Content-Type"))
}
