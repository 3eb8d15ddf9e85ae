/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acronis/go-admission/admission"
	"github.com/acronis/go-admission/config"
	"github.com/acronis/go-admission/httpserver"
	"github.com/acronis/go-admission/internal/libinfo"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/profserver"
)

const (
	envVarsPrefix             = "ADMISSIOND"
	adminServerKeyPrefix      = "adminServer"
	adminServerDefaultAddress = "127.0.0.1:8081"
)

type appConfig struct {
	Log         *log.Config
	Server      *httpserver.Config
	AdminServer *httpserver.Config
	Admission   *admission.Config
	ProfServer  *profserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:         log.NewConfig(),
		Server:      httpserver.NewConfig(),
		AdminServer: httpserver.NewConfig(
			httpserver.WithKeyPrefix(adminServerKeyPrefix), httpserver.WithDefaultAddress(adminServerDefaultAddress)),
		Admission:   admission.NewConfig(),
		ProfServer:  profserver.NewConfig(),
	}
}

func (c *appConfig) all() []config.Config {
	return []config.Config{c.Log, c.Server, c.AdminServer, c.Admission, c.ProfServer}
}

// loadAppConfig loads configuration from the file (if the path is not empty) and environment variables.
func loadAppConfig(path string) (*appConfig, error) {
	cfg := newAppConfig()
	cfgs := cfg.all()
	loader := config.NewDefaultLoader(envVarsPrefix)
	if path == "" {
		if err := loader.Load(cfgs[0], cfgs[1:]...); err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		return cfg, nil
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dataType = config.DataTypeJSON
	}
	if err := loader.LoadFromFile(path, dataType, cfgs[0], cfgs[1:]...); err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", path, err)
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	var cfgPath string
	rootCmd := &cobra.Command{
		Use:           "admissiond",
		Short:         "Rate-limited and memoized stock prediction API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig(cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML or JSON configuration file")
	rootCmd.AddCommand(newValidateCommand(&cfgPath), newVersionCommand())
	return rootCmd
}

func newValidateCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadAppConfig(*cfgPath); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), libinfo.GetVersion())
			return err
		},
	}
}
