/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
	"golang.org/x/time/rate"
)

// Alg represents a rate-limiting algorithm.
type Alg string

// Supported rate-limiting algorithms.
const (
	// AlgSlidingWindow is the bucketed sliding window (lenient, default).
	AlgSlidingWindow Alg = "sliding_window"

	// AlgLeakyBucket is GCRA (Generic Cell Rate Algorithm), a leaky bucket variant.
	AlgLeakyBucket Alg = "leaky_bucket"

	// AlgTokenBucket is the classic token bucket refilled at MaxRequests per Window.
	AlgTokenBucket Alg = "token_bucket"
)

func (a Alg) valid() bool {
	switch a {
	case AlgSlidingWindow, AlgLeakyBucket, AlgTokenBucket:
		return true
	}
	return false
}

// gcraLimiters holds one GCRA limiter per distinct policy.
// The throttled in-memory store bounds the number of keys with LRU eviction.
type gcraLimiters struct {
	mu       sync.Mutex
	maxKeys  int
	limiters map[Policy]*throttled.GCRARateLimiterCtx
}

func newGCRALimiters(maxKeys int) *gcraLimiters {
	return &gcraLimiters{maxKeys: maxKeys, limiters: make(map[Policy]*throttled.GCRARateLimiterCtx)}
}

func (g *gcraLimiters) get(p Policy) (*throttled.GCRARateLimiterCtx, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lim, ok := g.limiters[p]; ok {
		return lim, nil
	}
	store, err := memstore.NewCtx(g.maxKeys)
	if err != nil {
		return nil, err
	}
	lim, err := throttled.NewGCRARateLimiterCtx(store, throttled.RateQuota{
		MaxRate:  throttled.PerDuration(p.MaxRequests, p.Window),
		MaxBurst: p.MaxRequests - 1,
	})
	if err != nil {
		return nil, err
	}
	g.limiters[p] = lim
	return lim, nil
}

func (g *gcraLimiters) reset() {
	g.mu.Lock()
	g.limiters = make(map[Policy]*throttled.GCRARateLimiterCtx)
	g.mu.Unlock()
}

// checkGCRA uses the wall clock of the throttled store, so only identity bookkeeping follows the limiter clock.
// A store error is not a rate-limiting decision, the request is allowed.
func (l *Limiter) checkGCRA(clientID string, policy Policy, now time.Time) Result {
	l.withClient(clientID, policy.Window, now, func(*clientState) {})

	lim, err := l.gcra.get(policy)
	if err != nil {
		l.metrics.IncErrors()
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}
	limited, res, err := lim.RateLimitCtx(context.Background(), clientID, 1)
	if err != nil {
		l.metrics.IncErrors()
		return Result{Allowed: true, Remaining: policy.MaxRequests}
	}
	out := Result{Allowed: !limited, Remaining: res.Remaining}
	if limited {
		out.RetryAfter = res.RetryAfter
	}
	return out
}

type tokenBucket struct {
	policy  Policy
	limiter *rate.Limiter
}

func (l *Limiter) checkTokenBucket(clientID string, policy Policy, now time.Time) Result {
	var res Result
	l.withClient(clientID, policy.Window, now, func(cs *clientState) {
		if cs.tokens == nil || cs.tokens.policy != policy {
			every := policy.Window / time.Duration(policy.MaxRequests)
			cs.tokens = &tokenBucket{policy: policy, limiter: rate.NewLimiter(rate.Every(every), policy.MaxRequests)}
		}
		res.Allowed = cs.tokens.limiter.AllowN(now, 1)
		tokens := cs.tokens.limiter.TokensAt(now)
		res.Remaining = int(math.Max(0, math.Floor(tokens)))
		if !res.Allowed {
			res.RetryAfter = time.Duration((1 - tokens) * float64(policy.Window) / float64(policy.MaxRequests))
		}
	})
	return res
}
