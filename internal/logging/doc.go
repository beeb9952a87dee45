// Package logging assembles structured slog loggers and formatting helpers used
// across cgmanager.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes helpers so components tag log lines with their name, the engine
// channel they act on and request correlation IDs. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
