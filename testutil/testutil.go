/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers shared by the tests of the module:
// a controllable clock, assertions for HTTP responses and Prometheus metrics, and network helpers.
package testutil

type tHelper interface {
	Helper()
}
