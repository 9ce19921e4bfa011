// Package config loads the captain's YAML configuration file and provides
// the built-in defaults. Command line flags override loaded values.
package config
