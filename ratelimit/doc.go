/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit provides an in-process per-(client, route) rate limiter.
//
// The default algorithm is a bucketed sliding window: each client identity keeps
// an ordered list of (second, count) buckets, requests arriving within one second
// of the latest bucket are coalesced into it, and the limit is checked against the
// total counted before the current request. This is a lenient approximation:
// a burst inside one second may slightly exceed the limit before being rejected.
// Stricter algorithms can be selected instead: GCRA (leaky bucket, backed by
// github.com/throttled/throttled/v2) and token bucket (backed by golang.org/x/time/rate).
//
// Identities idle for more than twice the window are removed by Cleanup.
// Cleanup also runs opportunistically in a background goroutine once the number of
// tracked identities exceeds the configured threshold.
//
// State is per process. Deployments running N processes get N independent quotas.
package ratelimit
