// Package config loads the addon loader daemon configuration from a YAML or
// TOML file and fills in defaults relative to the file location.
package config
