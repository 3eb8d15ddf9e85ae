/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/config"
)

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("{}"), config.DataTypeJSON, cfg))
		want := NewDefaultConfig()
		require.Equal(t, want.Address, cfg.Address)
		require.Equal(t, want.Timeouts, cfg.Timeouts)
		require.False(t, cfg.Log.RequestStart)
		require.Empty(t, cfg.Log.ExcludedEndpoints)
	})

	t.Run("yaml values", func(t *testing.T) {
		cfgData := `
server:
  address: 127.0.0.1:9090
  timeouts:
    write: 2m
    shutdown: 30s
  log:
    requestStart: true
    excludedEndpoints: [/healthz]
`
		cfg := NewConfig()
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(cfgData), config.DataTypeYAML, cfg))
		require.Equal(t, "127.0.0.1:9090", cfg.Address)
		require.Equal(t, 2*time.Minute, cfg.Timeouts.Write.Duration())
		require.Equal(t, 30*time.Second, cfg.Timeouts.Shutdown.Duration())
		require.Equal(t, defaultServerTimeoutsRead, cfg.Timeouts.Read.Duration())
		require.True(t, cfg.Log.RequestStart)
		require.Equal(t, []string{"/healthz"}, cfg.Log.ExcludedEndpoints)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("admin"))
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"admin": {"address": ":9999"}}`), config.DataTypeJSON, cfg))
		require.Equal(t, ":9999", cfg.Address)
	})

	t.Run("custom default address", func(t *testing.T) {
		apiCfg := NewConfig()
		adminCfg := NewConfig(WithKeyPrefix("admin"), WithDefaultAddress("127.0.0.1:8081"))
		require.NoError(t, config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString("{}"), config.DataTypeJSON, apiCfg, adminCfg))
		require.Equal(t, defaultServerAddress, apiCfg.Address)
		require.Equal(t, "127.0.0.1:8081", adminCfg.Address)
	})

	t.Run("errors", func(t *testing.T) {
		for _, tc := range []struct {
			name    string
			cfgData string
			wantErr string
		}{
			{"empty address", `{"server": {"address": ""}}`, "server.address: cannot be empty"},
			{"negative timeout", `{"server": {"timeouts": {"idle": "-1s"}}}`, "server.timeouts.idle: cannot be negative"},
		} {
			t.Run(tc.name, func(t *testing.T) {
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewBufferString(tc.cfgData), config.DataTypeJSON, NewConfig())
				require.EqualError(t, err, tc.wantErr)
			})
		}
	})
}
