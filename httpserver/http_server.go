/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/httpserver/middleware"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/service"
)

// HTTPRequestMetricsOpts represents options for the HTTP request metrics that are collected by HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Routes registers application routes on the root router.
	Routes func(router chi.Router)

	// Middlewares are applied after the default ones (request id, logging, recovery, metrics).
	// This is where the admission middleware is usually placed.
	Middlewares []func(http.Handler) http.Handler

	HealthCheck        HealthCheck
	MetricsHandler     http.Handler
	HTTPRequestMetrics HTTPRequestMetricsOpts

	// TrustForwardedFor makes access logs to report the client address from forwarding headers.
	TrustForwardedFor bool

	// Listener is used instead of listening on Config.Address when set.
	Listener net.Listener
}

// HTTPServer represents a wrapper around http.Server with chi.Router as a handler.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	HTTPServer      *http.Server
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener       net.Listener
	port           atomic.Int32
	httpServerDone atomic.Value
	metrics        *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined logging, metrics collecting,
// recovering after panics and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer {
	metrics := middleware.NewHTTPRequestMetricsCollectorWithOpts(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})

	rootMiddlewares := append(defaultMiddlewares(cfg, logger, opts, metrics), opts.Middlewares...)
	router := NewRouter(logger, RouterOpts{
		RootMiddlewares: rootMiddlewares,
		Routes:          opts.Routes,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
	})

	return &HTTPServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      cfg.Timeouts.Write.Duration(),
			ReadTimeout:       cfg.Timeouts.Read.Duration(),
			ReadHeaderTimeout: cfg.Timeouts.ReadHeader.Duration(),
			IdleTimeout:       cfg.Timeouts.Idle.Duration(),
			Handler:           router,
		},
		HTTPRouter:      router,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.Shutdown.Duration(),
		listener:        opts.Listener,
		metrics:         metrics,
	}
}

func defaultMiddlewares(
	cfg *Config, logger log.FieldLogger, opts Opts, metrics *middleware.HTTPRequestMetricsCollector,
) []func(http.Handler) http.Handler {
	requestStartTime := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(rw, r.WithContext(middleware.NewContextWithRequestStartTime(r.Context(), time.Now())))
		})
	}

	metricsMw := middleware.HTTPRequestMetrics(metrics, middleware.GetChiRoutePattern)
	metricsExceptSystemEndpoints := func(next http.Handler) http.Handler {
		withMetrics := metricsMw(next)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			for _, endpoint := range SystemEndpoints {
				if r.URL.Path == endpoint {
					next.ServeHTTP(rw, r)
					return
				}
			}
			withMetrics.ServeHTTP(rw, r)
		})
	}

	return []func(http.Handler) http.Handler{
		requestStartTime,
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{
			RequestStart:      cfg.Log.RequestStart,
			ExcludedEndpoints: cfg.Log.ExcludedEndpoints,
			TrustForwardedFor: opts.TrustForwardedFor,
		}),
		middleware.Recovery(),
		metricsExceptSystemEndpoints,
	}
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- fmt.Errorf("listen %s: %w", s.HTTPServer.Addr, err)
			return
		}
	}
	if err = s.storePort(); err != nil {
		logger.Error("unexpected format of TCP listener address", log.Error(err))
		fatalError <- err
		return
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

func (s *HTTPServer) storePort() error {
	if s.listener.Addr().Network() != "tcp" {
		return nil
	}
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return err
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return err
	}
	s.port.Store(int32(port))
	return nil
}

// Stop stops application HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeReturned()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitServeReturned()
	return nil
}

func (s *HTTPServer) waitServeReturned() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done
	}
}

// MustRegisterMetrics registers metrics in Prometheus client and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics() {
	s.metrics.MustRegister()
}

// UnregisterMetrics unregisters metrics in Prometheus client.
func (s *HTTPServer) UnregisterMetrics() {
	s.metrics.Unregister()
}

// GetPort returns the TCP port the server listens on. It's 0 until Start binds the listener.
func (s *HTTPServer) GetPort() int {
	return int(s.port.Load())
}
