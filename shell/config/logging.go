package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// SlogLevel maps the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnsupportedLogLevel, c.Level)
	}
}

// NewSlogHandler creates the JSON or text handler the command logs with.
func (c LogConfig) NewSlogHandler(w io.Writer) (slog.Handler, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}

	options := &slog.HandlerOptions{Level: level}

	switch c.Format {
	case "text":
		return slog.NewTextHandler(w, options), nil
	case "json", "":
		return slog.NewJSONHandler(w, options), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLogFormat, c.Format)
	}
}
