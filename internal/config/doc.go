// Package config loads, normalizes, and validates cgmanager configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CASPAR_HOST. The Config type centralizes every knob the daemon and CLI need:
// where the playout engine listens, which channels and effect groups exist at
// startup, and where state and logs live.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
