// Package logging configures the portald process logger.
//
//	logger, err := logging.Setup(logging.Options{Level: "debug", Format: "json"})
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // "debug", "info", "warn", "error" (default: "info")
	Format string    // "text" or "json" (default: "text")
	Output io.Writer // default: os.Stderr
}

// ParseLevel converts a level name to slog.Level. Unrecognized values map to info.
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

// Validate returns an error if level or format is not recognized.
func Validate(opts Options) error {
	switch strings.ToLower(strings.TrimSpace(opts.Level)) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", opts.Level)
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "text", "json", "":
	default:
		return fmt.Errorf("unknown log format %q (valid: text, json)", opts.Format)
	}
	return nil
}

// Setup builds the logger, installs it as the slog default and returns it.
func Setup(opts Options) (*slog.Logger, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
