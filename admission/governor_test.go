/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/httpserver"
	"github.com/acronis/go-admission/httpserver/middleware"
	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/memoize"
	"github.com/acronis/go-admission/resultcache"
	"github.com/acronis/go-admission/testutil"
)

type GovernorTestSuite struct {
	suite.Suite
	clock     *testutil.FakeClock
	logger    *logtest.Recorder
	governor  *Governor
	router    chi.Router
	computing atomic.Int32
}

func TestGovernor(t *testing.T) {
	suite.Run(t, new(GovernorTestSuite))
}

func (s *GovernorTestSuite) SetupTest() {
	s.clock = testutil.NewDefaultFakeClock()
	s.logger = logtest.NewRecorder()
	s.computing.Store(0)

	cfg := NewDefaultConfig()
	cfg.RateLimit.MaxRequests = 5
	var err error
	s.governor, err = NewWithOpts(cfg, s.logger, Opts{Now: s.clock.Now})
	s.Require().NoError(err)

	quote := memoize.Memoize(s.governor.Cache(),
		func(ctx context.Context, symbol string) (map[string]string, error) {
			s.computing.Inc()
			return map[string]string{"symbol": symbol, "action": "BUY"}, nil
		},
		func(symbol string) (string, error) { return "quote:" + symbol, nil },
		time.Minute, memoize.Options{Logger: s.logger})

	s.router = chi.NewRouter()
	s.router.Use(s.governor.Middleware(nil))
	s.router.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	s.router.Get("/api/stocks/{symbol}", func(rw http.ResponseWriter, r *http.Request) {
		res, qErr := quote(r.Context(), chi.URLParam(r, "symbol"))
		s.Require().NoError(qErr)
		_, _ = fmt.Fprint(rw, res["action"])
	})
}

func (s *GovernorTestSuite) get(path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func (s *GovernorTestSuite) TestRouteTemplateSharesQuota() {
	for i, symbol := range []string{"AAPL", "BBRI", "BBCA", "TLKM", "GOTO"} {
		resp := s.get("/api/stocks/"+symbol, "10.0.0.1:1234")
		s.Require().Equal(http.StatusOK, resp.Code)
		s.Require().Equal(fmt.Sprint(5-i), resp.Header().Get(middleware.HeaderRateLimitRemaining))
	}
	resp := s.get("/api/stocks/AAPL", "10.0.0.1:1234")
	s.Require().Equal(http.StatusTooManyRequests, resp.Code)
	s.Require().JSONEq(`{"detail":"Rate limit exceeded. Please try again later."}`, resp.Body.String())

	// Another client has its own quota.
	s.Require().Equal(http.StatusOK, s.get("/api/stocks/AAPL", "10.0.0.2:1234").Code)
	s.Require().Equal(2, s.governor.Limiter().Stats().TrackedClients)
}

func (s *GovernorTestSuite) TestMemoizedHandlerComputesOncePerKey() {
	for i := 0; i < 3; i++ {
		resp := s.get("/api/stocks/BBCA", fmt.Sprintf("10.0.1.%d:1234", i))
		s.Require().Equal(http.StatusOK, resp.Code)
		s.Require().Equal("BUY", resp.Body.String())
	}
	s.Require().Equal(int32(1), s.computing.Load())

	s.clock.Advance(time.Minute + time.Second)
	s.Require().Equal(http.StatusOK, s.get("/api/stocks/BBCA", "10.0.1.0:1234").Code)
	s.Require().Equal(int32(2), s.computing.Load())
}

func (s *GovernorTestSuite) TestExemptPathsAreNotTracked() {
	for i := 0; i < 20; i++ {
		resp := s.get("/healthz", "10.0.0.1:1234")
		s.Require().Equal(http.StatusOK, resp.Code)
		s.Require().Empty(resp.Header().Get(middleware.HeaderRateLimitLimit))
	}
	s.Require().Zero(s.governor.Limiter().Stats().TrackedClients)
}

func (s *GovernorTestSuite) TestMaintain() {
	s.Require().NoError(resultcache.SetValue(s.governor.Cache(), "short", 1, time.Second))
	s.Require().NoError(resultcache.SetValue(s.governor.Cache(), "long", 2, time.Hour))
	s.get("/api/stocks/AAPL", "10.0.0.1:1234")

	s.Require().Equal(MaintenanceResult{}, s.governor.Maintain())

	s.clock.Advance(2*time.Minute + time.Second)
	s.Require().Equal(MaintenanceResult{ExpiredCacheEntries: 2, IdleClients: 1}, s.governor.Maintain())
	s.Require().Equal(1, s.governor.Cache().Len()) // "long" entry is still alive

	stats := s.governor.Stats()
	s.Require().Equal(int64(2), stats.MaintenanceRuns)
	s.Require().Equal(s.clock.Now().Unix(), stats.LastMaintenanceUnix)
	s.Require().Zero(stats.RateLimit.TrackedClients)
}

func (s *GovernorTestSuite) TestMetrics() {
	s.governor.MustRegisterMetrics()
	defer s.governor.UnregisterMetrics()

	for i := 0; i < 6; i++ {
		s.get("/api/stocks/AAPL", "10.0.0.1:1234")
	}
	s.Require().Equal(5.0, promtestutil.ToFloat64(
		s.governor.limiterMetrics.DecisionsTotal.WithLabelValues("/api/stocks", "allowed")))
	s.Require().Equal(1.0, promtestutil.ToFloat64(
		s.governor.limiterMetrics.DecisionsTotal.WithLabelValues("/api/stocks", "rejected")))
	s.Require().Equal(4.0, promtestutil.ToFloat64(s.governor.cacheMetrics.HitsTotal.WithLabelValues()))
}

func (s *GovernorTestSuite) TestHealthCheck() {
	res, err := s.governor.HealthCheck(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(httpserver.HealthCheckResult{
		HealthCheckComponentCache:   httpserver.HealthCheckStatusOK,
		HealthCheckComponentLimiter: httpserver.HealthCheckStatusOK,
	}, res)
}

func TestGovernor_Unit(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Maintenance.Interval = config.TimeDuration(10 * time.Millisecond)
	cfg.Cache.CleanupInterval = config.TimeDuration(10 * time.Millisecond)

	logRecorder := logtest.NewRecorder()
	governor, err := New(cfg, logRecorder)
	require.NoError(t, err)
	governor.Cache().Set("stale", []byte("1"), time.Nanosecond)

	unit := governor.Unit()
	fatalErr := make(chan error, 1)
	go unit.Start(fatalErr)
	require.Eventually(t, func() bool { return governor.Stats().MaintenanceRuns > 0 }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return governor.Cache().Len() == 0 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, unit.Stop(true))
	require.Empty(t, fatalErr)
}

func TestNewWithOpts_Errors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.RateLimit.Alg = "fixed_window"
	_, err := New(cfg, logtest.NewRecorder())
	require.EqualError(t, err, `create rate limiter: unknown rate-limiting algorithm "fixed_window"`)

	cfg = NewDefaultConfig()
	cfg.Cache.Shards = -1
	_, err = New(cfg, logtest.NewRecorder())
	require.EqualError(t, err, "create result cache: shards number must be greater or equal to 0, got -1")
}
