/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// Label values of the decisions metric.
const (
	decisionAllowed  = "allowed"
	decisionRejected = "rejected"
)

// MetricsCollector represents a collector of rate-limiting metrics.
type MetricsCollector interface {
	// IncAllowed increments the number of allowed requests to the route.
	IncAllowed(route string)

	// IncRejected increments the number of rejected requests to the route.
	IncRejected(route string)

	// SetTrackedClients sets the number of tracked client identities.
	SetTrackedClients(int)

	// AddCleanedUp increments the number of identities removed by cleanup.
	AddCleanedUp(int)

	// IncErrors increments the number of internal errors (the request is allowed in this case).
	IncErrors()
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the rate limiter.
type PrometheusMetrics struct {
	DecisionsTotal *prometheus.CounterVec
	TrackedClients prometheus.Gauge
	CleanedUpTotal prometheus.Counter
	ErrorsTotal    prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_decisions_total",
			Help:        "Number of rate-limiting decisions by route and outcome.",
			ConstLabels: opts.ConstLabels,
		}, []string{"route", "outcome"}),
		TrackedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_tracked_clients",
			Help:        "Number of client identities tracked by the rate limiter.",
			ConstLabels: opts.ConstLabels,
		}),
		CleanedUpTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_cleaned_up_total",
			Help:        "Number of idle client identities removed by cleanup.",
			ConstLabels: opts.ConstLabels,
		}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_errors_total",
			Help:        "Number of internal rate-limiting errors.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.DecisionsTotal, pm.TrackedClients, pm.CleanedUpTotal, pm.ErrorsTotal)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.DecisionsTotal)
	prometheus.Unregister(pm.TrackedClients)
	prometheus.Unregister(pm.CleanedUpTotal)
	prometheus.Unregister(pm.ErrorsTotal)
}

// IncAllowed increments the number of allowed requests to the route.
func (pm *PrometheusMetrics) IncAllowed(route string) {
	pm.DecisionsTotal.WithLabelValues(route, decisionAllowed).Inc()
}

// IncRejected increments the number of rejected requests to the route.
func (pm *PrometheusMetrics) IncRejected(route string) {
	pm.DecisionsTotal.WithLabelValues(route, decisionRejected).Inc()
}

// SetTrackedClients sets the number of tracked client identities.
func (pm *PrometheusMetrics) SetTrackedClients(n int) {
	pm.TrackedClients.Set(float64(n))
}

// AddCleanedUp increments the number of identities removed by cleanup.
func (pm *PrometheusMetrics) AddCleanedUp(n int) {
	pm.CleanedUpTotal.Add(float64(n))
}

// IncErrors increments the number of internal errors.
func (pm *PrometheusMetrics) IncErrors() {
	pm.ErrorsTotal.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncAllowed(string)     {}
func (disabledMetrics) IncRejected(string)    {}
func (disabledMetrics) SetTrackedClients(int) {}
func (disabledMetrics) AddCleanedUp(int)      {}
func (disabledMetrics) IncErrors()            {}
