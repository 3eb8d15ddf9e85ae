/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package resultcache provides an in-memory TTL cache for results of expensive computations.
//
// Values are stored as encoded payloads ([]byte), so a stored value is immutable and
// a concurrent reader never observes a partially written value. Typed access is provided
// by the GetValue and SetValue helpers, which encode and decode values with the cache Codec.
// A value that cannot be encoded is not cached and SetValue returns an error wrapping ErrUncacheable.
//
// Entries are spread over independently locked shards selected by the xxhash of the key.
// Expired entries are removed lazily on access, by ClearExpired, or by RunPeriodicCleanup
// which sweeps the shards one at a time off the request path.
package resultcache
