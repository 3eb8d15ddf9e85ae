/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/ratelimit"
)

func loadConfig(t *testing.T, dataType config.DataType, cfgData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(cfgData), dataType, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(t, config.DataTypeJSON, "{}")
		require.NoError(t, err)
		want := NewDefaultConfig()
		require.Equal(t, want.Cache, cfg.Cache)
		require.Equal(t, want.Maintenance, cfg.Maintenance)
		require.Equal(t, want.RateLimit.Window, cfg.RateLimit.Window)
		require.Equal(t, want.RateLimit.MaxRequests, cfg.RateLimit.MaxRequests)
		require.Equal(t, want.RateLimit.CleanupThreshold, cfg.RateLimit.CleanupThreshold)
		require.Equal(t, want.RateLimit.Alg, cfg.RateLimit.Alg)
		require.Equal(t, DefaultExemptPaths, cfg.RateLimit.ExemptPaths)
		require.True(t, cfg.RateLimit.TrustForwardedFor)
		require.False(t, cfg.RateLimit.DryRun)
		require.Empty(t, cfg.RateLimit.Routes)
	})

	t.Run("yaml values", func(t *testing.T) {
		cfg, err := loadConfig(t, config.DataTypeYAML, `
admission:
  cache:
    defaultTTL: 30s
    cleanupInterval: 10s
    shards: 8
  rateLimit:
    window: 60s
    maxRequests: 5
    cleanupThreshold: 500
    alg: token_bucket
    exemptPaths: ["/static", "/docs/*"]
    trustForwardedFor: false
    dryRun: true
    routes:
      - route: /api/stocks/{symbol}
        window: 10s
        maxRequests: 2
  maintenance:
    interval: 15s
`)
		require.NoError(t, err)
		require.Equal(t, 30*time.Second, cfg.Cache.DefaultTTL.Duration())
		require.Equal(t, 10*time.Second, cfg.Cache.CleanupInterval.Duration())
		require.Equal(t, 8, cfg.Cache.Shards)
		require.Equal(t, time.Minute, cfg.RateLimit.Window.Duration())
		require.Equal(t, 5, cfg.RateLimit.MaxRequests)
		require.Equal(t, 500, cfg.RateLimit.CleanupThreshold)
		require.Equal(t, string(ratelimit.AlgTokenBucket), cfg.RateLimit.Alg)
		require.Equal(t, []string{"/static", "/docs/*"}, cfg.RateLimit.ExemptPaths)
		require.False(t, cfg.RateLimit.TrustForwardedFor)
		require.True(t, cfg.RateLimit.DryRun)
		require.Equal(t, []RouteConfig{
			{Route: "/api/stocks/{symbol}", Window: config.TimeDuration(10 * time.Second), MaxRequests: 2},
		}, cfg.RateLimit.Routes)
		require.Equal(t, 15*time.Second, cfg.Maintenance.Interval.Duration())

		limiterOpts := cfg.LimiterOptions()
		require.Equal(t, ratelimit.Policy{Window: time.Minute, MaxRequests: 5}, limiterOpts.Policy)
		require.Equal(t, ratelimit.AlgTokenBucket, limiterOpts.Alg)
		require.Equal(t, 500, limiterOpts.CleanupThreshold)
		require.Equal(t, map[string]ratelimit.Policy{
			"/api/stocks": {Window: 10 * time.Second, MaxRequests: 2},
		}, limiterOpts.Routes)

		cacheOpts := cfg.CacheOptions()
		require.Equal(t, 30*time.Second, cacheOpts.DefaultTTL)
		require.Equal(t, 8, cacheOpts.Shards)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name    string
			cfgData string
			wantErr string
		}{
			{
				name:    "zero ttl",
				cfgData: `{"admission": {"cache": {"defaultTTL": "0s"}}}`,
				wantErr: "admission.cache.defaultTTL: must be positive",
			},
			{
				name:    "negative cleanup interval",
				cfgData: `{"admission": {"cache": {"cleanupInterval": "-1s"}}}`,
				wantErr: "admission.cache.cleanupInterval: must be greater or equal to 0",
			},
			{
				name:    "zero max requests",
				cfgData: `{"admission": {"rateLimit": {"maxRequests": 0}}}`,
				wantErr: "admission.rateLimit.maxRequests: must be positive",
			},
			{
				name:    "unknown alg",
				cfgData: `{"admission": {"rateLimit": {"alg": "fixed_window"}}}`,
				wantErr: `admission.rateLimit.alg: unknown value "fixed_window", should be one of [sliding_window, leaky_bucket, token_bucket]`,
			},
			{
				name:    "route without window",
				cfgData: `{"admission": {"rateLimit": {"routes": [{"route": "/api/x", "maxRequests": 1}]}}}`,
				wantErr: "admission.rateLimit.routes[0].window: must be positive",
			},
			{
				name:    "route without path",
				cfgData: `{"admission": {"rateLimit": {"routes": [{"window": "1s", "maxRequests": 1}]}}}`,
				wantErr: "admission.rateLimit.routes[0].route: cannot be empty",
			},
			{
				name:    "zero maintenance interval",
				cfgData: `{"admission": {"maintenance": {"interval": "0s"}}}`,
				wantErr: "admission.maintenance.interval: must be positive",
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := loadConfig(t, config.DataTypeJSON, tt.cfgData)
				require.EqualError(t, err, tt.wantErr)
			})
		}
	})

	t.Run("env vars", func(t *testing.T) {
		t.Setenv("ADMISSIOND_ADMISSION_RATELIMIT_MAXREQUESTS", "7")
		t.Setenv("ADMISSIOND_ADMISSION_RATELIMIT_DRYRUN", "true")
		cfg := NewConfig()
		require.NoError(t, config.NewDefaultLoader("admissiond").Load(cfg))
		require.Equal(t, 7, cfg.RateLimit.MaxRequests)
		require.True(t, cfg.RateLimit.DryRun)
	})
}
