// Package logger builds the slog logger used across the tool: a colorized
// terminal handler in development, JSON in production, with an optional
// rotating file sink.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/asteroid-team/librimix-prep/internal/env"
)

// Option customizes logger construction.
type Option func(*options)

type options struct {
	level     slog.Level
	logToFile bool
	logFile   string
}

// WithLevel sets the minimum log level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithLogToFile enables the rotating file sink.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the file sink path.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// New builds a logger for the given environment.
func New(environment env.Environment, opts ...Option) *slog.Logger {
	o := &options{
		level:   slog.LevelInfo,
		logFile: "logs/librimix-prep.log",
	}
	for _, opt := range opts {
		opt(o)
	}

	handlers := []slog.Handler{consoleHandler(environment, o.level)}

	if o.logToFile {
		file := &lumberjack.Logger{
			Filename:   o.logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level}))
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0])
	}
	return slog.New(multiHandler(handlers))
}

func consoleHandler(environment env.Environment, level slog.Level) slog.Handler {
	if environment.IsProduction() {
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
}

// multiHandler fans every record out to all handlers.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}
