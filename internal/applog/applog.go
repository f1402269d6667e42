// Package applog constructs the application's root structured logger and
// carries it through context.Context, so every subsystem logs through the
// same sink with the same level/format rather than reaching for a hidden
// global.
package applog

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

type ctxKey struct{}

// Options controls the root logger's level and rendering.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

// New builds the root logger. Unset Output defaults to stderr; unset Format
// defaults to text; an unparsable Level falls back to info.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})

	if opts.Format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger carried by ctx, or the package default
// logger if none was attached — callers never need to nil-check.
func FromContext(ctx context.Context) *log.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*log.Logger); ok {
		return logger
	}
	return log.Default()
}

// Component returns a sub-logger tagged with a "component" field, the
// convention every subsystem (taskmanager, queue, auth, broker) uses to keep
// a request's whole lifecycle greppable on one field.
func Component(logger *log.Logger, name string) *log.Logger {
	return logger.With("component", name)
}
