/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission wires the result cache and the rate limiter into a single
// per-process Governor.
//
// The Governor is constructed once from Config and owns both stores. It provides
// the admission middleware, a service.Unit running periodic maintenance
// (expired cache entries and idle rate-limiting identities are swept off the
// request path), Prometheus metrics and an admin HTTP surface that the caller
// mounts behind its own authentication.
package admission
