// Package config loads, normalizes, and validates netkeeper configuration
// data.
//
// It supplies repository defaults for both the development and production
// profiles, expands user paths (including tilde shortcuts), reads TOML files,
// and honours environment fallbacks such as NETKEEPER_CONFIG and
// NETKEEPER_NTFY_TOPIC. The Config type centralizes every knob the daemon and
// CLI need, from probe targets and thresholds to modem credentials and data
// directories.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
