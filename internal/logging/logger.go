package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the service-wide JSON logger on stdout. Every line
// carries the service name so the api and the notifier can be told
// apart in a shared pipeline.
func NewLogger(service, level string) *slog.Logger {
	return New(os.Stdout, service, level)
}

// New is the writer-injectable form used by tests.
func New(w io.Writer, service, level string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	})
	return slog.New(h).With("service", service)
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps the LOG_LEVEL config value to a slog level. Unknown
// values fall back to info.
func ParseLevel(s string) slog.Level {
	if l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l
	}
	return slog.LevelInfo
}
