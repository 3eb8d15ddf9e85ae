/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the admission layer and its collaborators
// (logger, HTTP server) from YAML/JSON files and environment variables.
//
// Each configuration object implements Config: it first registers its default values
// in a DataProvider and then reads (and validates) the final values from it.
// DataProvider is backed by viper, so values may be overridden by environment variables.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}
