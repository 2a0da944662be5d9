package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger. format "json" selects the JSON
// handler, anything else is text.
func Init(service, level, format string) *slog.Logger {
	return InitTo(os.Stdout, service, level, format)
}

// InitTo is Init with an explicit writer.
func InitTo(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	json := isJSON(format)
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json)
	return logger
}

func isJSON(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "1", "true":
		return true
	}
	return false
}

// ParseLevel maps debug/warn/error to slog levels; everything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
