// Package config loads and validates the YAML configuration. Every section
// has its own Validate method so a bad value is reported with its section
// name before anything starts.
package config
