// Package config loads, normalizes, and validates easel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and centralizes every knob the engine and CLI
// need: server and planner endpoints, notification capacities, orchestrator
// retry budgets, and history bounds.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
