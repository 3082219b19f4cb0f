// Package config loads the ticketscout YAML configuration, applies defaults
// and environment overrides, and validates the result.
package config
