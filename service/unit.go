/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides the lifecycle primitives of a long-running process:
// units that can be started and stopped, background workers and the Service
// that runs a unit until a fatal error or a shutdown signal.
package service

// Unit represents a part of the service with its own lifecycle.
type Unit interface {
	// Start runs the unit. It may return right after initialization or block for the whole unit lifetime.
	// A startup or runtime failure is reported by writing to fatalErr, nothing is written on success.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
