/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package resultcache

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/testutil"
)

func newTestCache(t *testing.T, clock *testutil.FakeClock, metrics MetricsCollector) *Cache {
	t.Helper()
	c, err := NewWithOpts(Options{Now: clock.Now, MetricsCollector: metrics, Shards: 4})
	require.NoError(t, err)
	return c
}

type prediction struct {
	Action string `json:"action"`
}

func TestNewWithOpts(t *testing.T) {
	_, err := NewWithOpts(Options{DefaultTTL: -time.Second})
	require.EqualError(t, err, "default TTL must be greater or equal to 0, got -1s")

	_, err = NewWithOpts(Options{Shards: -1})
	require.EqualError(t, err, "shards number must be greater or equal to 0, got -1")

	c := New()
	require.Equal(t, DefaultTTL, c.DefaultTTL())
	require.Len(t, c.shards, DefaultShards)
	require.IsType(t, JSONCodec{}, c.Codec())
}

func TestCache_SetGet(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c := newTestCache(t, clock, nil)

	for i := 0; i < 100; i++ {
		c.Set("key:"+strconv.Itoa(i), []byte(strconv.Itoa(i)), time.Minute)
	}
	require.Equal(t, 100, c.Len())
	for i := 0; i < 100; i++ {
		payload, ok := c.Get("key:" + strconv.Itoa(i))
		require.True(t, ok)
		require.Equal(t, strconv.Itoa(i), string(payload))
	}

	_, ok := c.Get("missing")
	require.False(t, ok)

	// Overwrite is unconditional.
	c.Set("key:1", []byte("new"), time.Minute)
	payload, ok := c.Get("key:1")
	require.True(t, ok)
	require.Equal(t, "new", string(payload))
	require.Equal(t, 100, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c := newTestCache(t, clock, nil)

	c.Set("k", []byte(`"v"`), time.Second)
	clock.Advance(time.Second)
	_, ok := c.Get("k")
	require.True(t, ok, "entry must be served while now <= expiresAt")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok)
	require.Equal(t, 0, c.Len(), "expired entry must be removed on access")
	require.Equal(t, 1, c.ClearExpired())
	require.Equal(t, 0, c.ClearExpired())
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c, err := NewWithOpts(Options{Now: clock.Now, DefaultTTL: 10 * time.Second})
	require.NoError(t, err)

	c.Set("k", []byte("1"), 0)
	clock.Advance(10 * time.Second)
	_, ok := c.Get("k")
	require.True(t, ok)
	clock.Advance(time.Second)
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestCache_PredictionScenario(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c := newTestCache(t, clock, nil)

	require.NoError(t, SetValue(c, "predict_BBCA", map[string]string{"action": "BUY"}, 300*time.Second))

	val, ok, err := GetValue[prediction](c, "predict_BBCA")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prediction{Action: "BUY"}, val)

	clock.Advance(301 * time.Second)
	_, ok, err = GetValue[prediction](c, "predict_BBCA")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, c.ClearExpired())
}

func TestCache_NullPayloadIsHit(t *testing.T) {
	c := New()

	require.NoError(t, SetValue[*prediction](c, "empty", nil, time.Minute))
	val, ok, err := GetValue[*prediction](c, "empty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, val)

	_, ok, err = GetValue[*prediction](c, "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_Uncacheable(t *testing.T) {
	metrics := NewPrometheusMetrics()
	c, err := NewWithOpts(Options{MetricsCollector: metrics})
	require.NoError(t, err)

	err = SetValue(c, "nan", math.NaN(), time.Minute)
	require.ErrorIs(t, err, ErrUncacheable)
	err = SetValue(c, "chan", make(chan int), time.Minute)
	require.ErrorIs(t, err, ErrUncacheable)

	require.Equal(t, 0, c.Len())
	require.Equal(t, 2, int(promtestutil.ToFloat64(metrics.UncacheableTotal.With(nil))))
}

func TestStoreValue(t *testing.T) {
	c := New()

	stored, err := StoreValue[interface{}](c, "indicators", map[string]interface{}{"rsi": 14, "tags": []string{"a"}}, time.Minute)
	require.NoError(t, err)
	got, ok, err := GetValue[interface{}](c, "indicators")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, got, stored, "stored copy must be equal to what is read back")
	require.Equal(t, map[string]interface{}{"rsi": 14.0, "tags": []interface{}{"a"}}, stored)

	_, err = StoreValue(c, "nan", math.NaN(), time.Minute)
	require.ErrorIs(t, err, ErrUncacheable)
	require.Equal(t, 1, c.Len())
}

func TestCache_DecodeError(t *testing.T) {
	c := New()
	c.Set("k", []byte("not json"), time.Minute)
	_, ok, err := GetValue[prediction](c, "k")
	require.Error(t, err)
	require.False(t, ok)
}

func TestCache_DeleteAndClear(t *testing.T) {
	metrics := NewPrometheusMetrics()
	c, err := NewWithOpts(Options{MetricsCollector: metrics})
	require.NoError(t, err)

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	c.Set("c", []byte("3"), time.Minute)
	require.Equal(t, 3, int(promtestutil.ToFloat64(metrics.EntriesAmount.With(nil))))

	require.True(t, c.Delete("a"))
	require.False(t, c.Delete("a"))
	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 2, int(promtestutil.ToFloat64(metrics.EntriesAmount.With(nil))))

	c.Clear()
	require.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	require.False(t, ok)
	require.Equal(t, 0, int(promtestutil.ToFloat64(metrics.EntriesAmount.With(nil))))
}

func TestCache_Metrics(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	metrics := NewPrometheusMetrics()
	c := newTestCache(t, clock, metrics)

	c.Set("a", []byte("1"), time.Second)
	c.Set("b", []byte("2"), time.Second)
	c.Set("c", []byte("3"), time.Hour)
	c.Get("a")
	c.Get("x")

	clock.Advance(2 * time.Second)
	c.Get("a")
	require.Equal(t, 2, c.ClearExpired())

	require.Equal(t, 1, int(promtestutil.ToFloat64(metrics.HitsTotal.With(nil))))
	require.Equal(t, 2, int(promtestutil.ToFloat64(metrics.MissesTotal.With(nil))))
	require.Equal(t, 2, int(promtestutil.ToFloat64(metrics.ExpirationsTotal.With(nil))))
	require.Equal(t, 1, int(promtestutil.ToFloat64(metrics.EntriesAmount.With(nil))))
}

func TestCache_Stats(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c := newTestCache(t, clock, nil)

	require.Equal(t, Stats{EstimatedMemoryUsageHuman: "0B"}, c.Stats())

	c.Set("short", []byte("12345"), 5*time.Second)
	clock.Advance(10 * time.Second)
	c.Set("long", []byte("1234567890"), time.Hour)

	st := c.Stats()
	require.Equal(t, 2, st.TotalEntries)
	require.Equal(t, 1, st.ExpiredEntries)
	require.Equal(t, 1, st.ActiveEntries)
	require.InDelta(t, 5.0, st.AverageAgeSeconds, 0.001)
	require.Equal(t, uint64(len("short")+5+len("long")+10+2*entryOverheadBytes), st.EstimatedMemoryUsage)
	require.NotEmpty(t, st.EstimatedMemoryUsageHuman)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()
	const workers = 16
	const keys = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%keys)
				want := fmt.Sprintf(`{"writer":%d}`, w)
				c.Set(key, []byte(want), time.Minute)
				if payload, ok := c.Get(key); ok {
					var v struct{ Writer int }
					if err := c.Codec().Decode(payload, &v); err != nil {
						t.Errorf("torn value for %s: %q", key, payload)
						return
					}
				}
				if i%100 == 0 {
					c.ClearExpired()
				}
			}
		}(w)
	}
	wg.Wait()
	require.Equal(t, keys, c.Len())
}

func TestCache_RunPeriodicCleanup(t *testing.T) {
	clock := testutil.NewDefaultFakeClock()
	c := newTestCache(t, clock, nil)
	c.Set("k", []byte("1"), time.Second)
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunPeriodicCleanup(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}
