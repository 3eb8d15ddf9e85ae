/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/resultcache"
	"github.com/acronis/go-admission/testutil"
)

func TestGovernor_AdminHandler(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	logRecorder := logtest.NewRecorder()
	governor, err := NewWithOpts(NewDefaultConfig(), logRecorder, Opts{Now: clock.Now})
	require.NoError(t, err)
	handler := governor.AdminHandler()

	do := func(method, path string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(method, path, nil))
		return resp
	}
	decode := func(resp *httptest.ResponseRecorder, v interface{}) {
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, "application/json", resp.Header().Get("Content-Type"))
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), v))
	}

	cache := governor.Cache()
	require.NoError(t, resultcache.SetValue(cache, "BBCA", "BUY", time.Second))
	require.NoError(t, resultcache.SetValue(cache, "BBRI", "SELL", time.Minute))
	governor.Limiter().Check("10.0.0.1", "/api/stocks/AAPL")
	clock.Advance(2 * time.Second)

	var cacheStats resultcache.Stats
	decode(do(http.MethodGet, AdminPathCacheStats), &cacheStats)
	require.Equal(t, 2, cacheStats.TotalEntries)
	require.Equal(t, 1, cacheStats.ExpiredEntries)
	require.Equal(t, 1, cacheStats.ActiveEntries)

	var clearResp ClearResponse
	decode(do(http.MethodDelete, AdminPathCacheExpired), &clearResp)
	require.Equal(t, 1, clearResp.Removed)
	_, found := logRecorder.FindEntry("expired result cache entries cleared, 1 removed")
	require.True(t, found)

	var stats Stats
	decode(do(http.MethodGet, AdminPathStats), &stats)
	require.Equal(t, 1, stats.Cache.TotalEntries)
	require.Equal(t, 1, stats.RateLimit.TrackedClients)

	decode(do(http.MethodDelete, AdminPathCache), &clearResp)
	require.Equal(t, 1, clearResp.Removed)
	require.Zero(t, cache.Len())

	var rlStats struct {
		TrackedClients          int `json:"tracked_clients"`
		ActiveClientsLastMinute int `json:"active_clients_last_minute"`
	}
	decode(do(http.MethodGet, AdminPathRateLimitStats), &rlStats)
	require.Equal(t, 1, rlStats.TrackedClients)
	require.Equal(t, 1, rlStats.ActiveClientsLastMinute)

	decode(do(http.MethodDelete, AdminPathRateLimit), &clearResp)
	require.Equal(t, 1, clearResp.Removed)
	require.Zero(t, governor.Limiter().Stats().TrackedClients)

	require.Equal(t, http.StatusMethodNotAllowed, do(http.MethodPost, AdminPathCache).Code)
}
