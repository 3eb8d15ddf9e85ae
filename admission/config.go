/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/ratelimit"
	"github.com/acronis/go-admission/resultcache"
)

const cfgDefaultKeyPrefix = "admission"

const (
	cfgKeyCacheDefaultTTL           = "cache.defaultTTL"
	cfgKeyCacheCleanupInterval      = "cache.cleanupInterval"
	cfgKeyCacheShards               = "cache.shards"
	cfgKeyRateLimitWindow           = "rateLimit.window"
	cfgKeyRateLimitMaxRequests      = "rateLimit.maxRequests"
	cfgKeyRateLimitCleanupThreshold = "rateLimit.cleanupThreshold"
	cfgKeyRateLimitAlg              = "rateLimit.alg"
	cfgKeyRateLimitExemptPaths      = "rateLimit.exemptPaths"
	cfgKeyRateLimitTrustForwarded   = "rateLimit.trustForwardedFor"
	cfgKeyRateLimitDryRun           = "rateLimit.dryRun"
	cfgKeyRateLimitRoutes           = "rateLimit.routes"
	cfgKeyMaintenanceInterval       = "maintenance.interval"
)

const (
	defaultMaintenanceInterval        = time.Minute
	defaultRateLimitTrustForwardedFor = true
	defaultRateLimitAlg               = string(ratelimit.AlgSlidingWindow)
)

const (
	errMsgMustBePositive             = "must be positive"
	errMsgMustBeGreaterOrEqualToZero = "must be greater or equal to 0"
	errMsgUnknownAlgPattern          = "unknown value %q, should be one of [%s, %s, %s]"
)

// DefaultExemptPaths are never rate-limited unless rateLimit.exemptPaths is set explicitly.
var DefaultExemptPaths = []string{"/healthz", "/metrics"}

// Config represents a set of configuration parameters for the Governor.
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache" json:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance" json:"maintenance"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// CacheConfig represents configuration parameters of the result cache.
type CacheConfig struct {
	DefaultTTL config.TimeDuration `mapstructure:"defaultTTL" yaml:"defaultTTL" json:"defaultTTL"`

	// CleanupInterval enables a dedicated sweep of expired entries when positive.
	// Expired entries are swept by the maintenance worker anyway.
	CleanupInterval config.TimeDuration `mapstructure:"cleanupInterval" yaml:"cleanupInterval" json:"cleanupInterval"`

	Shards int `mapstructure:"shards" yaml:"shards" json:"shards"`
}

// RateLimitConfig represents configuration parameters of the rate limiter and the admission middleware.
type RateLimitConfig struct {
	Window            config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	MaxRequests       int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	CleanupThreshold  int                 `mapstructure:"cleanupThreshold" yaml:"cleanupThreshold" json:"cleanupThreshold"`
	Alg               string              `mapstructure:"alg" yaml:"alg" json:"alg"`
	ExemptPaths       []string            `mapstructure:"exemptPaths" yaml:"exemptPaths" json:"exemptPaths"`
	TrustForwardedFor bool                `mapstructure:"trustForwardedFor" yaml:"trustForwardedFor" json:"trustForwardedFor"`
	DryRun            bool                `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	Routes            []RouteConfig       `mapstructure:"routes" yaml:"routes" json:"routes"`
}

// RouteConfig overrides the rate-limiting policy for a route.
type RouteConfig struct {
	Route       string              `mapstructure:"route" yaml:"route" json:"route"`
	Window      config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	MaxRequests int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
}

// MaintenanceConfig represents configuration parameters of the periodic maintenance.
type MaintenanceConfig struct {
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// NewConfig creates a new instance of the Config that is loaded with the "admission" key prefix.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a custom key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Cache: CacheConfig{
			DefaultTTL: config.TimeDuration(resultcache.DefaultTTL),
			Shards:     resultcache.DefaultShards,
		},
		RateLimit: RateLimitConfig{
			Window:            config.TimeDuration(ratelimit.DefaultWindow),
			MaxRequests:       ratelimit.DefaultMaxRequests,
			CleanupThreshold:  ratelimit.DefaultCleanupThreshold,
			Alg:               defaultRateLimitAlg,
			ExemptPaths:       append([]string(nil), DefaultExemptPaths...),
			TrustForwardedFor: defaultRateLimitTrustForwardedFor,
		},
		Maintenance: MaintenanceConfig{Interval: config.TimeDuration(defaultMaintenanceInterval)},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyCacheDefaultTTL, resultcache.DefaultTTL)
	dp.SetDefault(cfgKeyCacheCleanupInterval, 0)
	dp.SetDefault(cfgKeyCacheShards, resultcache.DefaultShards)
	dp.SetDefault(cfgKeyRateLimitWindow, ratelimit.DefaultWindow)
	dp.SetDefault(cfgKeyRateLimitMaxRequests, ratelimit.DefaultMaxRequests)
	dp.SetDefault(cfgKeyRateLimitCleanupThreshold, ratelimit.DefaultCleanupThreshold)
	dp.SetDefault(cfgKeyRateLimitAlg, defaultRateLimitAlg)
	dp.SetDefault(cfgKeyRateLimitExemptPaths, DefaultExemptPaths)
	dp.SetDefault(cfgKeyRateLimitTrustForwarded, defaultRateLimitTrustForwardedFor)
	dp.SetDefault(cfgKeyRateLimitDryRun, false)
	dp.SetDefault(cfgKeyMaintenanceInterval, defaultMaintenanceInterval)
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.Cache.set(dp); err != nil {
		return err
	}
	if err := c.RateLimit.set(dp); err != nil {
		return err
	}
	interval, err := getPositiveDuration(dp, cfgKeyMaintenanceInterval)
	if err != nil {
		return err
	}
	c.Maintenance.Interval = interval
	return nil
}

func (c *CacheConfig) set(dp config.DataProvider) error {
	var err error
	if c.DefaultTTL, err = getPositiveDuration(dp, cfgKeyCacheDefaultTTL); err != nil {
		return err
	}
	var cleanupInterval time.Duration
	if cleanupInterval, err = dp.GetDuration(cfgKeyCacheCleanupInterval); err != nil {
		return err
	}
	if cleanupInterval < 0 {
		return dp.WrapKeyErr(cfgKeyCacheCleanupInterval, errors.New(errMsgMustBeGreaterOrEqualToZero))
	}
	c.CleanupInterval = config.TimeDuration(cleanupInterval)
	if c.Shards, err = getPositiveInt(dp, cfgKeyCacheShards); err != nil {
		return err
	}
	return nil
}

func (c *RateLimitConfig) set(dp config.DataProvider) error {
	var err error
	if c.Window, err = getPositiveDuration(dp, cfgKeyRateLimitWindow); err != nil {
		return err
	}
	if c.MaxRequests, err = getPositiveInt(dp, cfgKeyRateLimitMaxRequests); err != nil {
		return err
	}
	if c.CleanupThreshold, err = getPositiveInt(dp, cfgKeyRateLimitCleanupThreshold); err != nil {
		return err
	}

	if c.Alg, err = dp.GetString(cfgKeyRateLimitAlg); err != nil {
		return err
	}
	switch ratelimit.Alg(c.Alg) {
	case ratelimit.AlgSlidingWindow, ratelimit.AlgLeakyBucket, ratelimit.AlgTokenBucket:
	default:
		return dp.WrapKeyErr(cfgKeyRateLimitAlg, fmt.Errorf(errMsgUnknownAlgPattern,
			c.Alg, ratelimit.AlgSlidingWindow, ratelimit.AlgLeakyBucket, ratelimit.AlgTokenBucket))
	}

	if c.ExemptPaths, err = dp.GetStringSlice(cfgKeyRateLimitExemptPaths); err != nil {
		return err
	}
	if c.TrustForwardedFor, err = dp.GetBool(cfgKeyRateLimitTrustForwarded); err != nil {
		return err
	}
	if c.DryRun, err = dp.GetBool(cfgKeyRateLimitDryRun); err != nil {
		return err
	}

	c.Routes = nil
	if err = dp.UnmarshalKey(cfgKeyRateLimitRoutes, &c.Routes, config.WithTextUnmarshalerHook()); err != nil {
		return dp.WrapKeyErr(cfgKeyRateLimitRoutes, err)
	}
	for i, rc := range c.Routes {
		key := fmt.Sprintf("%s[%d]", cfgKeyRateLimitRoutes, i)
		if rc.Route == "" {
			return dp.WrapKeyErr(key+".route", errors.New("cannot be empty"))
		}
		if rc.Window <= 0 {
			return dp.WrapKeyErr(key+".window", errors.New(errMsgMustBePositive))
		}
		if rc.MaxRequests <= 0 {
			return dp.WrapKeyErr(key+".maxRequests", errors.New(errMsgMustBePositive))
		}
	}
	return nil
}

func getPositiveDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, dp.WrapKeyErr(key, errors.New(errMsgMustBePositive))
	}
	return config.TimeDuration(dur), nil
}

func getPositiveInt(dp config.DataProvider, key string) (int, error) {
	n, err := dp.GetInt(key)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, dp.WrapKeyErr(key, errors.New(errMsgMustBePositive))
	}
	return n, nil
}

// LimiterOptions converts the rate-limiting part of the configuration into ratelimit.Options.
func (c *Config) LimiterOptions() ratelimit.Options {
	opts := ratelimit.Options{
		Policy:           ratelimit.Policy{Window: c.RateLimit.Window.Duration(), MaxRequests: c.RateLimit.MaxRequests},
		Alg:              ratelimit.Alg(c.RateLimit.Alg),
		CleanupThreshold: c.RateLimit.CleanupThreshold,
	}
	if len(c.RateLimit.Routes) != 0 {
		opts.Routes = make(map[string]ratelimit.Policy, len(c.RateLimit.Routes))
		for _, rc := range c.RateLimit.Routes {
			opts.Routes[ratelimit.NormalizeRoute(rc.Route)] = ratelimit.Policy{
				Window: rc.Window.Duration(), MaxRequests: rc.MaxRequests}
		}
	}
	return opts
}

// CacheOptions converts the cache part of the configuration into resultcache.Options.
func (c *Config) CacheOptions() resultcache.Options {
	return resultcache.Options{DefaultTTL: c.Cache.DefaultTTL.Duration(), Shards: c.Cache.Shards}
}
