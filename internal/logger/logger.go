// Package logger builds the process-wide slog logger.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ekisa-team/beam/internal/env"
)

const (
	defaultMaxSizeMB  = 50
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type options struct {
	level      slog.Level
	output     io.Writer
	logToFile  bool
	logFile    string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	noColor    bool
}

// Option configures the logger.
type Option func(*options)

// WithLevel sets the minimum level.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutput sets the console writer. Defaults to os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithLogToFile enables the rotating log file.
func WithLogToFile(enabled bool) Option {
	return func(o *options) {
		o.logToFile = enabled
	}
}

// WithLogFile sets the rotating log file path.
func WithLogFile(path string) Option {
	return func(o *options) {
		o.logFile = path
	}
}

// WithRotation sets the lumberjack rotation limits. Zero values keep the
// defaults.
func WithRotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *options) {
		if maxSizeMB > 0 {
			o.maxSizeMB = maxSizeMB
		}
		if maxBackups > 0 {
			o.maxBackups = maxBackups
		}
		if maxAgeDays > 0 {
			o.maxAgeDays = maxAgeDays
		}
	}
}

// WithNoColor disables ANSI colors in development output.
func WithNoColor(noColor bool) Option {
	return func(o *options) {
		o.noColor = noColor
	}
}

// New returns a logger for environment: colored tint output in development,
// JSON in production. With WithLogToFile every record is also written as JSON
// to a rotating file. The returned close function releases the file.
func New(environment env.Environment, opts ...Option) (*slog.Logger, func() error) {
	o := &options{
		level:      slog.LevelInfo,
		output:     os.Stderr,
		logFile:    filepath.Join("logs", "beam.log"),
		maxSizeMB:  defaultMaxSizeMB,
		maxBackups: defaultMaxBackups,
		maxAgeDays: defaultMaxAgeDays,
	}
	if !environment.IsProduction() {
		o.level = slog.LevelDebug
	}

	for _, opt := range opts {
		opt(o)
	}

	var console slog.Handler
	if environment.IsProduction() {
		console = slog.NewJSONHandler(o.output, &slog.HandlerOptions{Level: o.level})
	} else {
		console = tint.NewHandler(o.output, &tint.Options{
			Level:      o.level,
			TimeFormat: time.TimeOnly,
			NoColor:    o.noColor,
		})
	}

	if !o.logToFile || o.logFile == "" {
		return slog.New(console), func() error { return nil }
	}

	file := &lumberjack.Logger{
		Filename:   o.logFile,
		MaxSize:    o.maxSizeMB,
		MaxBackups: o.maxBackups,
		MaxAge:     o.maxAgeDays,
		Compress:   true,
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: o.level})

	return slog.New(fanout{console, fileHandler}), file.Close
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// fanout sends every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
