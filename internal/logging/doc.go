// Package logging constructs the daemon's slog logger: a human console
// handler or JSON output, optionally teeing into a log file under the
// configured log directory.
package logging
