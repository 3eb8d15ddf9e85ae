/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/httpserver"
	"github.com/acronis/go-admission/httpserver/middleware"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/ratelimit"
	"github.com/acronis/go-admission/resultcache"
	"github.com/acronis/go-admission/service"
)

// Health-check component names reported by Governor.HealthCheck.
const (
	HealthCheckComponentCache   = "result_cache"
	HealthCheckComponentLimiter = "rate_limiter"
)

// Opts represents options for creating Governor.
type Opts struct {
	// MetricsNamespace is prepended to the names of cache and limiter metrics.
	MetricsNamespace string

	// MetricsConstLabels are applied to all cache and limiter metrics.
	MetricsConstLabels prometheus.Labels

	// Now returns the current time for both stores. time.Now is used by default.
	Now func() time.Time
}

// Stats is a snapshot of both stores and the maintenance counters.
type Stats struct {
	Cache               resultcache.Stats `json:"cache"`
	RateLimit           ratelimit.Stats   `json:"rate_limit"`
	MaintenanceRuns     int64             `json:"maintenance_runs"`
	LastMaintenanceUnix int64             `json:"last_maintenance_unix"`
}

// MaintenanceResult reports what a single maintenance pass has removed.
type MaintenanceResult struct {
	ExpiredCacheEntries int
	IdleClients         int
}

// Governor owns the result cache and the rate limiter of the process.
// It's the only place where both stores are constructed.
type Governor struct {
	cfg            *Config
	logger         log.FieldLogger
	now            func() time.Time
	cache          *resultcache.Cache
	limiter        *ratelimit.Limiter
	cacheMetrics   *resultcache.PrometheusMetrics
	limiterMetrics *ratelimit.PrometheusMetrics

	maintenanceRuns atomic.Int64
	lastMaintenance atomic.Int64
}

var _ service.MetricsRegisterer = (*Governor)(nil)

// New creates a new Governor from the configuration.
func New(cfg *Config, logger log.FieldLogger) (*Governor, error) {
	return NewWithOpts(cfg, logger, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, logger log.FieldLogger, opts Opts) (*Governor, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	g := &Governor{
		cfg:    cfg,
		logger: logger,
		now:    opts.Now,
		cacheMetrics: resultcache.NewPrometheusMetricsWithOpts(resultcache.PrometheusMetricsOpts{
			Namespace: opts.MetricsNamespace, ConstLabels: opts.MetricsConstLabels}),
		limiterMetrics: ratelimit.NewPrometheusMetricsWithOpts(ratelimit.PrometheusMetricsOpts{
			Namespace: opts.MetricsNamespace, ConstLabels: opts.MetricsConstLabels}),
	}

	cacheOpts := cfg.CacheOptions()
	cacheOpts.MetricsCollector = g.cacheMetrics
	cacheOpts.Now = opts.Now
	var err error
	if g.cache, err = resultcache.NewWithOpts(cacheOpts); err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	limiterOpts := cfg.LimiterOptions()
	limiterOpts.MetricsCollector = g.limiterMetrics
	limiterOpts.Now = opts.Now
	if g.limiter, err = ratelimit.NewWithOpts(limiterOpts); err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	return g, nil
}

// Cache returns the result cache owned by the Governor.
func (g *Governor) Cache() *resultcache.Cache {
	return g.cache
}

// Limiter returns the rate limiter owned by the Governor.
func (g *Governor) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// Middleware returns the admission middleware configured from rateLimit.* parameters.
// getRoutePattern resolves route templates (middleware.GetChiRoutePattern is used if nil).
func (g *Governor) Middleware(getRoutePattern middleware.RoutePatternGetterFunc) func(next http.Handler) http.Handler {
	if getRoutePattern == nil {
		getRoutePattern = middleware.GetChiRoutePattern
	}
	return middleware.AdmissionWithOpts(g.limiter, middleware.AdmissionOpts{
		ExemptPaths:       g.cfg.RateLimit.ExemptPaths,
		TrustForwardedFor: g.cfg.RateLimit.TrustForwardedFor,
		GetRoutePattern:   getRoutePattern,
		DryRun:            g.cfg.RateLimit.DryRun,
	})
}

// Maintain removes expired cache entries and identities idle for longer than twice the window.
func (g *Governor) Maintain() MaintenanceResult {
	now := g.now()
	res := MaintenanceResult{
		ExpiredCacheEntries: g.cache.ClearExpired(),
		IdleClients:         g.limiter.Cleanup(now, g.cfg.RateLimit.Window.Duration()),
	}
	g.maintenanceRuns.Inc()
	g.lastMaintenance.Store(now.Unix())
	return res
}

// MaintenanceWorker returns a worker that calls Maintain every maintenance.interval.
func (g *Governor) MaintenanceWorker() *service.PeriodicWorker {
	logger := g.logger.With(log.String("worker", "admission_maintenance"))
	worker := service.WorkerFunc(func(ctx context.Context) error {
		res := g.Maintain()
		if res.ExpiredCacheEntries > 0 || res.IdleClients > 0 {
			logger.Info("admission state maintained",
				log.Int("expired_cache_entries", res.ExpiredCacheEntries),
				log.Int("idle_clients", res.IdleClients))
		}
		return nil
	})
	interval := g.cfg.Maintenance.Interval.Duration()
	return service.NewPeriodicWorkerWithOpts(worker, interval, logger, service.PeriodicWorkerOpts{InitialDelay: interval})
}

// Unit returns a service unit that runs maintenance (and the dedicated cache sweep if
// cache.cleanupInterval is set) until it's stopped. Metrics of both stores are registered with the unit.
func (g *Governor) Unit() service.Unit {
	units := []service.Unit{service.NewWorkerUnitWithOpts(g.MaintenanceWorker(), service.WorkerUnitOpts{MetricsRegisterer: g})}
	if interval := g.cfg.Cache.CleanupInterval.Duration(); interval > 0 {
		units = append(units, service.NewWorkerUnit(service.WorkerFunc(func(ctx context.Context) error {
			g.cache.RunPeriodicCleanup(ctx, interval)
			return nil
		})))
	}
	return service.NewCompositeUnit(units...)
}

// HealthCheck reports statuses of both stores. It's suitable for httpserver.Opts.HealthCheck.
// The stores are in-process, so they are failed only when they are not constructed.
func (g *Governor) HealthCheck(ctx context.Context) (httpserver.HealthCheckResult, error) {
	status := func(ok bool) httpserver.HealthCheckStatus {
		if ok {
			return httpserver.HealthCheckStatusOK
		}
		return httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{
		HealthCheckComponentCache:   status(g.cache != nil),
		HealthCheckComponentLimiter: status(g.limiter != nil),
	}, ctx.Err()
}

// Stats returns a snapshot of both stores.
func (g *Governor) Stats() Stats {
	return Stats{
		Cache:               g.cache.Stats(),
		RateLimit:           g.limiter.Stats(),
		MaintenanceRuns:     g.maintenanceRuns.Load(),
		LastMaintenanceUnix: g.lastMaintenance.Load(),
	}
}

// MustRegisterMetrics registers cache and limiter metrics in Prometheus client.
func (g *Governor) MustRegisterMetrics() {
	g.cacheMetrics.MustRegister()
	g.limiterMetrics.MustRegister()
}

// UnregisterMetrics unregisters cache and limiter metrics in Prometheus client.
func (g *Governor) UnregisterMetrics() {
	g.cacheMetrics.Unregister()
	g.limiterMetrics.Unregister()
}
