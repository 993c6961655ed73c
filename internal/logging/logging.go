package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a console slog.Logger with provided level string.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, "text")
}

// NewWithWriter builds a logger writing to w; format is "json" or "text".
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromString(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Component derives a child logger for one subsystem.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("component", name)
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
