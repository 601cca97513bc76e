// Package logging builds the slog loggers used throughout easel.
//
// It parses level and format settings from configuration, attaches the shared
// log file when one is configured, and provides the attr helpers and component
// logger conventions every package uses.
package logging
