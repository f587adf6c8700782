// Package logging wraps github.com/m-mizutani/clog behind a small
// context-carrying API, the same shape every usecase/cli call site in the
// teacher repo expects: logging.Default(), logging.From(ctx), logging.With(ctx, logger).
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/m-mizutani/clog"
	"github.com/m-mizutani/masq"
)

type ctxKey struct{}

var defaultLogger atomic.Pointer[slog.Logger]

func init() {
	defaultLogger.Store(New(os.Stderr, "console", slog.LevelInfo))
}

// New builds a logger in either "console" (human, colorized) or "json"
// (structured) format. Credential-bearing struct fields are masked
// regardless of format.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	replace := masq.New(
		masq.WithFieldName("AccessTokenEnc"),
		masq.WithFieldName("RefreshTokenEnc"),
		masq.WithFieldName("Password"),
		masq.WithFieldName("ClientSecret"),
	)

	var handler slog.Handler
	switch format {
	case "json":
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithReplaceAttr(replace),
			clog.WithJSON(),
		)
	default:
		handler = clog.New(
			clog.WithWriter(w),
			clog.WithLevel(level),
			clog.WithReplaceAttr(replace),
			clog.WithColor(true),
		)
	}
	return slog.New(handler)
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *slog.Logger) {
	defaultLogger.Store(l)
}

// Default returns the process-wide default logger.
func Default() *slog.Logger {
	return defaultLogger.Load()
}

// With returns a context carrying logger l.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger carried by ctx, or Default() if none is set.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Default()
}
