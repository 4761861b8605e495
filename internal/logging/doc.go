// Package logging assembles structured slog loggers and formatting helpers
// used across netkeeper components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes the standard field vocabulary (tick sequence, target,
// incident ID) so every component tags log lines the same way. The package
// also provides a no-op logger for tests and wiring code that cannot fail,
// plus retention helpers that prune old run logs.
//
// Prefer these constructors over hand-rolled slog setup to ensure new
// components emit data with the same shape and routing guarantees as the rest
// of the daemon.
package logging
