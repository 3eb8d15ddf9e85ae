/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/acronis/go-admission/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfgDataType config.DataType
		cfgData     string
		wantEnabled bool
		wantAddress string
		wantErr     string
	}{
		{
			name:        "defaults",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{}`,
			wantAddress: DefaultAddress,
		},
		{
			name:        "yaml config",
			cfgDataType: config.DataTypeYAML,
			cfgData: `
profServer:
  enabled: true
  address: "0.0.0.0:6060"
`,
			wantEnabled: true,
			wantAddress: "0.0.0.0:6060",
		},
		{
			name:        "json config",
			cfgDataType: config.DataTypeJSON,
			cfgData:     `{"profServer": {"enabled": true, "address": "127.0.0.1:6061"}}`,
			wantEnabled: true,
			wantAddress: "127.0.0.1:6061",
		},
		{
			name:        "enabled without address",
			cfgDataType: config.DataTypeYAML,
			cfgData:     "profServer:\n  enabled: true\n  address: \"\"\n",
			wantErr:     "profServer.address: cannot be empty when the server is enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), tt.cfgDataType, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantEnabled, cfg.Enabled)
			require.Equal(t, tt.wantAddress, cfg.Address)
		})
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	var appCfg struct {
		ProfServer *Config `yaml:"profServer"`
	}
	appCfg.ProfServer = NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte("profServer:\n  enabled: true\n"), &appCfg))
	require.True(t, appCfg.ProfServer.Enabled)
	require.Equal(t, DefaultAddress, appCfg.ProfServer.Address)
}
