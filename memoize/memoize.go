/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package memoize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/resultcache"
)

// Func is a computation that may be memoized.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// KeyFunc derives a cache key from the computation argument.
// It must be pure: equal arguments must always produce equal keys.
type KeyFunc[A any] func(arg A) (string, error)

// Options represents options for memoized computations.
type Options struct {
	// KeyPrefix is prepended to every derived key.
	KeyPrefix string

	// Logger is used for logging uncacheable results and key derivation faults. Logging is disabled if nil.
	Logger log.FieldLogger

	// ComputeTimeout bounds a shared computation. It's not limited if zero.
	// A shared computation is not canceled together with the caller that started it,
	// since other callers may be waiting for the same key.
	ComputeTimeout time.Duration
}

type memoizer struct {
	cache          *resultcache.Cache
	ttl            time.Duration
	prefix         string
	logger         log.FieldLogger
	computeTimeout time.Duration
	group          singleflight.Group
}

// Memoize returns a computation that looks up the result in the cache by the key derived
// from the argument and invokes compute only on a miss. Successful results are cached for ttl
// (non-positive ttl means the cache default).
//
// A cached result is returned as decoded from the cache payload, and so is a freshly computed one,
// so hits and misses are indistinguishable for the caller. R should be a type that survives
// the cache codec round trip (with JSONCodec, numbers inside interface{} values become float64).
// A result that can't be encoded is returned as is and not cached.
//
// Concurrent misses for the same key share one computation. It runs on a context that keeps
// the values of the starting caller's context but not its cancellation. Every caller stops
// waiting when its own context is done.
func Memoize[A, R any](cache *resultcache.Cache, compute Func[A, R], keyFn KeyFunc[A], ttl time.Duration, opts Options) Func[A, R] {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	m := &memoizer{cache: cache, ttl: ttl, prefix: opts.KeyPrefix, logger: opts.Logger, computeTimeout: opts.ComputeTimeout}

	return func(ctx context.Context, arg A) (R, error) {
		key, err := deriveKey(keyFn, arg)
		if err != nil {
			m.logger.Error("failed to derive cache key, computing without cache", log.Error(err))
			return compute(ctx, arg)
		}
		key = m.prefix + key

		if val, ok := lookup[R](m, key); ok {
			return val, nil
		}

		resCh := m.group.DoChan(key, func() (interface{}, error) {
			if val, ok := lookup[R](m, key); ok {
				return val, nil
			}
			return computeShared(ctx, m, compute, arg, key)
		})
		select {
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		case r := <-resCh:
			res, _ := r.Val.(R)
			return res, r.Err
		}
	}
}

func computeShared[A, R any](ctx context.Context, m *memoizer, compute Func[A, R], arg A, key string) (res R, err error) {
	// A panic inside DoChan would crash the process, so it is turned into an error.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in memoized computation: %v", p)
		}
	}()

	computeCtx := context.WithoutCancel(ctx)
	if m.computeTimeout > 0 {
		var cancel context.CancelFunc
		computeCtx, cancel = context.WithTimeout(computeCtx, m.computeTimeout)
		defer cancel()
	}
	if res, err = compute(computeCtx, arg); err != nil {
		return res, err
	}
	stored, sErr := resultcache.StoreValue(m.cache, key, res, m.ttl)
	if sErr != nil {
		m.logger.Warn("result is not cached", log.String("cache_key", key), log.Error(sErr))
		return res, nil
	}
	return stored, nil
}

func lookup[R any](m *memoizer, key string) (R, bool) {
	val, ok, err := resultcache.GetValue[R](m.cache, key)
	if err != nil {
		m.logger.Warn("failed to decode cached result, treating as miss", log.String("cache_key", key), log.Error(err))
		return val, false
	}
	return val, ok
}

// deriveKey calls keyFn recovering from panics, so a faulty key function can't break the call.
func deriveKey[A any](keyFn KeyFunc[A], arg A) (key string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in key function: %v", p)
		}
	}()
	if key, err = keyFn(arg); err != nil {
		return "", err
	}
	if key == "" {
		return "", errors.New("empty cache key")
	}
	return key, nil
}
