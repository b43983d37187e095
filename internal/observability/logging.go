// Package observability wires structured logging and metrics for the
// whole process.
package observability

import (
	"log/slog"
	"os"
)

// SetupLogging installs the process-wide slog handler: leveled text
// output on stderr, so stdout stays clean for search results.
func SetupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
