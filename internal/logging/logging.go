// Package logging configures structured logging for scopetools.
//
// Records below WARN are written to the "out" writer (normally stdout) and
// WARN or above to the "err" writer (normally stderr), so wrapped tool output
// logged at INFO and tool diagnostics logged at WARN land on the same streams
// the tool used.
//
// Usage:
//
//	logger := logging.New(os.Stdout, os.Stderr, logging.Options{Level: "info"})
//	stageLog := logging.WithComponent(logger, "stage")
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Options controls logger construction.
type Options struct {
	// Level accepts debug, info, warn, error (case-insensitive). Unknown values mean info.
	Level string
	// Format is "text" or "json". Unknown values mean text.
	Format string
	// AddSource includes file:line in every record.
	AddSource bool
}

// New creates a logger that splits records between out and errOut by level.
// The returned logger is also installed as the slog default.
func New(out, errOut io.Writer, opts Options) *slog.Logger {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.AddSource,
	}

	logger := slog.New(&splitHandler{
		low:  newHandler(out, opts.Format, hopts),
		high: newHandler(errOut, opts.Format, hopts),
	})
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a pre-set component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// splitHandler routes records below slog.LevelWarn to low and the rest to high.
type splitHandler struct {
	low  slog.Handler
	high slog.Handler
}

func (h *splitHandler) pick(level slog.Level) slog.Handler {
	if level >= slog.LevelWarn {
		return h.high
	}
	return h.low
}

func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.pick(level).Enabled(ctx, level)
}

func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.pick(r.Level).Handle(ctx, r)
}

func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{low: h.low.WithAttrs(attrs), high: h.high.WithAttrs(attrs)}
}

func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{low: h.low.WithGroup(name), high: h.high.WithGroup(name)}
}

var _ slog.Handler = (*splitHandler)(nil)
