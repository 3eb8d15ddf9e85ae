/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/restapi"
)

// Paths of the endpoints that every router built by this package exposes.
const (
	MetricsPath     = "/metrics"
	HealthCheckPath = "/healthz"
)

// SystemEndpoints are not counted in HTTP request metrics.
var SystemEndpoints = []string{MetricsPath, HealthCheckPath}

// RouterOpts represents options for creating chi.Router.
type RouterOpts struct {
	// RootMiddlewares are applied to every route including system ones.
	RootMiddlewares []func(http.Handler) http.Handler

	// Routes registers application routes. It may be nil.
	Routes func(router chi.Router)

	HealthCheck    HealthCheck
	MetricsHandler http.Handler
}

// NewRouter creates a new chi.Router and performs its basic configuration.
func NewRouter(logger log.FieldLogger, opts RouterOpts) chi.Router {
	router := chi.NewRouter()
	configureRouter(router, logger, opts)
	return router
}

func configureRouter(router chi.Router, logger log.FieldLogger, opts RouterOpts) {
	router.Use(opts.RootMiddlewares...)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Method(http.MethodGet, MetricsPath, metricsHandler)
	router.Method(http.MethodGet, HealthCheckPath, NewHealthCheckHandler(opts.HealthCheck))

	if opts.Routes != nil {
		opts.Routes(router)
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondDetail(rw, http.StatusNotFound, restapi.DetailNotFound, logger)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		restapi.RespondDetail(rw, http.StatusMethodNotAllowed, restapi.DetailMethodNotAllowed, logger)
	})
}
