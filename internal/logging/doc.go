// Package logging assembles structured slog loggers shared by clipd
// components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers plus context-aware tagging so
// pipeline code emits log lines with a consistent shape. A no-op logger is
// provided for tests and wiring code that cannot fail.
package logging
