package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger writes JSON records to stdout tagged with the service name
// and, when set, the instance id so logs from several API replicas can be
// told apart.
func NewJSONLogger(service, instanceID, level string) *slog.Logger {
	return New(os.Stdout, service, instanceID, level)
}

func New(w io.Writer, service, instanceID, level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})).With("service", service)
	if instanceID != "" {
		logger = logger.With("instance_id", instanceID)
	}
	return logger
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
