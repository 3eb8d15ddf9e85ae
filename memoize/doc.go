/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package memoize routes expensive computations through a resultcache.Cache.
//
// Memoize wraps a single-argument computation with an explicit key function.
// Decorate wraps a computation over heterogeneous positional and keyword arguments
// and derives the key from the computation identity and the arguments.
// Arguments that look like connection or session handles are excluded from the key.
//
// Errors are never cached. Concurrent misses for the same key are coalesced, so the
// computation runs once and its result is shared. The shared computation doesn't inherit
// the cancellation of the caller that started it, and each caller stops waiting on its own
// context. If the key cannot be derived, including arguments that can't be encoded without
// loss, the fault is logged and the computation runs uncached. If the result cannot be encoded,
// it's returned to the caller without being cached.
package memoize
