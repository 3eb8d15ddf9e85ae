/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// Default values of the limiter options.
const (
	DefaultWindow           = time.Minute
	DefaultMaxRequests      = 100
	DefaultCleanupThreshold = 10000
	DefaultShards           = 32
)

// opportunistic cleanup is not started more often than this (by the limiter clock)
const minOpportunisticCleanupInterval = time.Second

// activityPeriod is the period used for Stats.ActiveClientsLastMinute.
const activityPeriod = time.Minute

// Policy defines how many requests are allowed within the window.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

func (p Policy) validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive, got %d", p.MaxRequests)
	}
	return nil
}

// Result is the outcome of the Check call.
type Result struct {
	Allowed           bool
	Remaining         int
	Limit             int
	ResetEpochSeconds int64
	RetryAfter        time.Duration
}

// Stats is a point-in-time snapshot of the limiter state.
type Stats struct {
	TrackedClients          int `json:"tracked_clients"`
	ActiveClientsLastMinute int `json:"active_clients_last_minute"`
}

// Options represents options for the limiter.
type Options struct {
	// Policy is applied to routes without an override. DefaultWindow and DefaultMaxRequests are used for zero fields.
	Policy Policy

	// Routes contains per-route policy overrides. Keys are normalized with NormalizeRoute.
	Routes map[string]Policy

	// Alg is the rate-limiting algorithm used by Check. AlgSlidingWindow is used by default.
	Alg Alg

	// CleanupThreshold is the number of tracked identities that triggers the opportunistic cleanup.
	CleanupThreshold int

	// Shards is the number of independently locked sub-stores.
	Shards int

	// MetricsCollector receives limiter decisions. Metrics are disabled if nil.
	MetricsCollector MetricsCollector

	// Now returns the current time. time.Now is used by default.
	Now func() time.Time
}

type bucket struct {
	at    time.Time
	count int
}

type clientState struct {
	buckets  []bucket
	window   time.Duration
	lastSeen time.Time
	tokens   *tokenBucket
}

type windowShard struct {
	mu      sync.Mutex
	clients map[string]*clientState
}

// Limiter is a concurrency-safe per-client rate limiter.
type Limiter struct {
	shards           []*windowShard
	policy           Policy
	routes           map[string]Policy
	alg              Alg
	gcra             *gcraLimiters
	cleanupThreshold int
	metrics          MetricsCollector
	now              func() time.Time

	tracked        atomic.Int64
	cleanupRunning atomic.Bool
	lastCleanup    atomic.Int64 // unix nanoseconds of the last opportunistic cleanup start
	cleanupWG      sync.WaitGroup
}

// New creates a new Limiter with default options.
func New() *Limiter {
	l, _ := NewWithOpts(Options{}) // Error is always nil for default options.
	return l
}

// NewWithOpts creates a new Limiter with the provided options.
func NewWithOpts(opts Options) (*Limiter, error) {
	if opts.Policy.Window == 0 {
		opts.Policy.Window = DefaultWindow
	}
	if opts.Policy.MaxRequests == 0 {
		opts.Policy.MaxRequests = DefaultMaxRequests
	}
	if err := opts.Policy.validate(); err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	routes := make(map[string]Policy, len(opts.Routes))
	for route, p := range opts.Routes {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("policy for route %q: %w", route, err)
		}
		routes[NormalizeRoute(route)] = p
	}
	if opts.Alg == "" {
		opts.Alg = AlgSlidingWindow
	}
	if !opts.Alg.valid() {
		return nil, fmt.Errorf("unknown rate-limiting algorithm %q", opts.Alg)
	}
	if opts.CleanupThreshold < 0 {
		return nil, fmt.Errorf("cleanup threshold must be greater or equal to 0, got %d", opts.CleanupThreshold)
	}
	if opts.CleanupThreshold == 0 {
		opts.CleanupThreshold = DefaultCleanupThreshold
	}
	if opts.Shards < 0 {
		return nil, fmt.Errorf("shards number must be greater or equal to 0, got %d", opts.Shards)
	}
	if opts.Shards == 0 {
		opts.Shards = DefaultShards
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	shards := make([]*windowShard, opts.Shards)
	for i := range shards {
		shards[i] = &windowShard{clients: make(map[string]*clientState)}
	}
	l := &Limiter{
		shards:           shards,
		policy:           opts.Policy,
		routes:           routes,
		alg:              opts.Alg,
		cleanupThreshold: opts.CleanupThreshold,
		metrics:          opts.MetricsCollector,
		now:              opts.Now,
	}
	if opts.Alg == AlgLeakyBucket {
		l.gcra = newGCRALimiters(opts.CleanupThreshold)
	}
	return l, nil
}

// Policy returns the policy applied to the given route.
func (l *Limiter) Policy(route string) Policy {
	if p, ok := l.routes[NormalizeRoute(route)]; ok {
		return p
	}
	return l.policy
}

// Alg returns the rate-limiting algorithm used by Check.
func (l *Limiter) Alg() Alg {
	return l.alg
}

func (l *Limiter) shardFor(clientID string) *windowShard {
	return l.shards[xxhash.Sum64String(clientID)%uint64(len(l.shards))]
}

// Check counts a request of the client to the route and decides whether it's allowed.
// The route policy (default or override) and the configured algorithm are applied.
// An empty client network identity is counted in the "unknown" bucket.
func (l *Limiter) Check(clientNetworkID, routeTemplate string) Result {
	route := NormalizeRoute(routeTemplate)
	policy := l.Policy(route)
	clientID := MakeClientID(clientNetworkID, route)
	now := l.now()

	var res Result
	switch l.alg {
	case AlgLeakyBucket:
		res = l.checkGCRA(clientID, policy, now)
	case AlgTokenBucket:
		res = l.checkTokenBucket(clientID, policy, now)
	default:
		res = l.checkWindow(clientID, policy, now)
	}
	res.Limit = policy.MaxRequests
	res.ResetEpochSeconds = now.Add(policy.Window).Unix()

	if res.Allowed {
		l.metrics.IncAllowed(route)
	} else {
		l.metrics.IncRejected(route)
	}
	return res
}

// IsLimited counts a request of the client using the bucketed sliding window and reports
// whether the client has already reached maxRequests within the window before this request.
// Remaining is maxRequests minus the number of requests counted before this one (never negative).
func (l *Limiter) IsLimited(clientID string, window time.Duration, maxRequests int) (limited bool, remaining int) {
	res := l.checkWindow(clientID, Policy{Window: window, MaxRequests: maxRequests}, l.now())
	return !res.Allowed, res.Remaining
}

func (l *Limiter) checkWindow(clientID string, policy Policy, now time.Time) Result {
	var total int
	var retryAfter time.Duration
	l.withClient(clientID, policy.Window, now, func(cs *clientState) {
		cutoff := now.Add(-policy.Window)
		i := 0
		for i < len(cs.buckets) && !cs.buckets[i].at.After(cutoff) {
			i++
		}
		cs.buckets = cs.buckets[i:]

		for _, b := range cs.buckets {
			total += b.count
		}

		if last := len(cs.buckets) - 1; last >= 0 && now.Sub(cs.buckets[last].at) < time.Second {
			cs.buckets[last].count++
		} else {
			cs.buckets = append(cs.buckets, bucket{at: now, count: 1})
		}
		retryAfter = cs.buckets[0].at.Add(policy.Window).Sub(now)
	})

	limited := total >= policy.MaxRequests
	res := Result{Allowed: !limited, Remaining: policy.MaxRequests - total}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if limited {
		res.RetryAfter = retryAfter
	}
	return res
}

// withClient runs fn for the client state under the shard lock, creating the state if needed.
func (l *Limiter) withClient(clientID string, window time.Duration, now time.Time, fn func(cs *clientState)) {
	s := l.shardFor(clientID)
	s.mu.Lock()
	cs, found := s.clients[clientID]
	if !found {
		cs = &clientState{}
		s.clients[clientID] = cs
	}
	cs.window = window
	cs.lastSeen = now
	fn(cs)
	s.mu.Unlock()

	if !found {
		tracked := l.tracked.Inc()
		l.metrics.SetTrackedClients(int(tracked))
		if tracked > int64(l.cleanupThreshold) {
			l.maybeStartCleanup(now)
		}
	}
}

func (l *Limiter) maybeStartCleanup(now time.Time) {
	last := l.lastCleanup.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < minOpportunisticCleanupInterval {
		return
	}
	if !l.cleanupRunning.CompareAndSwap(false, true) {
		return
	}
	l.lastCleanup.Store(now.UnixNano())
	l.cleanupWG.Add(1)
	go func() {
		defer l.cleanupWG.Done()
		defer l.cleanupRunning.Store(false)
		l.Cleanup(l.now(), l.policy.Window)
	}()
}

// WaitCleanup blocks until a running opportunistic cleanup (if any) is finished.
func (l *Limiter) WaitCleanup() {
	l.cleanupWG.Wait()
}

// Cleanup removes identities whose latest activity predates now - 2*window.
// The window of the identity's own policy is used if it's longer.
// Shards are processed one by one. It returns the number of removed identities.
func (l *Limiter) Cleanup(now time.Time, window time.Duration) int {
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for clientID, cs := range s.clients {
			w := window
			if cs.window > w {
				w = cs.window
			}
			if cs.lastSeen.Before(now.Add(-2 * w)) {
				delete(s.clients, clientID)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		tracked := l.tracked.Sub(int64(removed))
		l.metrics.SetTrackedClients(int(tracked))
		l.metrics.AddCleanedUp(removed)
	}
	return removed
}

// Reset forgets all tracked identities.
func (l *Limiter) Reset() {
	for _, s := range l.shards {
		s.mu.Lock()
		s.clients = make(map[string]*clientState)
		s.mu.Unlock()
	}
	l.tracked.Store(0)
	l.metrics.SetTrackedClients(0)
	if l.gcra != nil {
		l.gcra.reset()
	}
}

// Stats returns the number of tracked identities and the number of identities active within the last minute.
func (l *Limiter) Stats() Stats {
	var st Stats
	for _, s := range l.shards {
		now := l.now()
		s.mu.Lock()
		st.TrackedClients += len(s.clients)
		for _, cs := range s.clients {
			if now.Sub(cs.lastSeen) <= activityPeriod {
				st.ActiveClientsLastMinute++
			}
		}
		s.mu.Unlock()
	}
	return st
}
