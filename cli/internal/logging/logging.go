package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values fall
// back to errors only.
func ParseLevel(l string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	}
	return slog.LevelError
}

// Init installs the default logger writing text records to w.
func Init(w io.Writer) *slog.Logger {
	level := slog.LevelError // default: production only shows errors
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l)
	}

	logger := slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

// InitFile points the default logger at path so log records do not draw
// over the call screen. An empty path discards them.
func InitFile(path string) (*slog.Logger, func() error, error) {
	if path == "" {
		return Init(io.Discard), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return Init(f), f.Close, nil
}
