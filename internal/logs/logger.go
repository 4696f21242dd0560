// Package logs builds the structured logger shared by the CLI and the HTTP
// service.
package logs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"github.com/plc-visualizer/plcforge/internal/config"
)

// Logger is the logger type handed to commands and handlers.
type Logger = *slog.Logger

// ParseLevel reads debug, info, warn or error. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New fans records out to a text handler on w and, when the configuration
// names a log file, a JSON handler appending to it. The returned closer
// releases the file.
func New(cfg config.LoggingConfig, w io.Writer) (Logger, io.Closer, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	handlers := []slog.Handler{
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closer = f
	}
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// Discard drops every record.
func Discard() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
