// Package logger builds the structured loggers used by Mimir binaries.
// Services log JSON or text according to configuration; the CLI logs text to stderr.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/mimir/internal/config"
)

// New returns a logger for cfg writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter returns a logger for cfg writing to w.
// Every record carries the service, version and env attributes.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line is useful while developing and too costly in production
		AddSource: cfg.Environment != config.EnvironmentProduction,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// NewCLI returns a terse text logger for command line tools.
func NewCLI(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// ParseLevel converts a level name to slog.Level. Unknown names map to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	// UnmarshalText is case-insensitive (INFO, info, Info)
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
