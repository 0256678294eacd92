// Package logging builds the process logger: structured records on stderr,
// mirrored into a log file under the configured logs directory.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the log file created inside the logs directory.
const FileName = "epubtran.log"

// ParseLevel maps a config level name to a slog level; unknown names map to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w in the given format ("text" or "json").
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Setup creates logsDir if needed and returns a logger writing to stderr and
// to logsDir/FileName. The returned closer releases the file. An empty
// logsDir logs to stderr only.
func Setup(logsDir, level, format string) (*slog.Logger, io.Closer, error) {
	if logsDir == "" {
		return New(os.Stderr, level, format), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logsDir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(io.MultiWriter(os.Stderr, f), level, format), f, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
