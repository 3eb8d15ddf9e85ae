/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-admission/admission"
	"github.com/acronis/go-admission/httpserver"
	"github.com/acronis/go-admission/internal/libinfo"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/profserver"
	"github.com/acronis/go-admission/restapi"
	"github.com/acronis/go-admission/service"
)

const metricsNamespace = "admissiond"

func run(ctx context.Context, cfg *appConfig) error {
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	unit, err := newServiceUnit(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize service", log.Error(err))
		return err
	}

	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	return service.New(logger, unit).StartContext(ctx)
}

func newServiceUnit(cfg *appConfig, logger log.FieldLogger) (*service.CompositeUnit, error) {
	constLabels := libinfo.AddPrometheusVersionLabel(nil)
	governor, err := admission.NewWithOpts(cfg.Admission, logger, admission.Opts{
		MetricsNamespace:   metricsNamespace,
		MetricsConstLabels: constLabels,
	})
	if err != nil {
		return nil, fmt.Errorf("create admission governor: %w", err)
	}

	stocks := newStocksHandler(governor.Cache(), cfg.Admission.Cache.DefaultTTL.Duration(), logger)
	apiServer := httpserver.New(cfg.Server, logger, httpserver.Opts{
		Routes: func(router chi.Router) {
			router.Get("/api/stocks/{symbol}", stocks.ServeHTTP)
		},
		Middlewares:        []func(next http.Handler) http.Handler{governor.Middleware(nil)},
		HealthCheck:        governor.HealthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace, ConstLabels: constLabels},
		TrustForwardedFor:  cfg.Admission.RateLimit.TrustForwardedFor,
	})

	adminServer := httpserver.New(cfg.AdminServer, logger.With(log.String("server", "admin")), httpserver.Opts{
		Routes:             governor.MountAdminRoutes,
		HealthCheck:        governor.HealthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace + "_admin", ConstLabels: constLabels},
	})

	units := []service.Unit{governor.Unit(), apiServer, adminServer}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}
	return service.NewCompositeUnit(units...), nil
}
