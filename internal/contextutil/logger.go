// Package contextutil carries the request-scoped logger through the context
// so handlers and lower layers log with the request attributes attached.
package contextutil

import (
	"context"
	"log/slog"
)

// Unexported struct key so values set by other packages cannot collide.
type loggerKey struct{}

// WithLogger returns a child context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger stored by WithLogger, or
// slog.Default() when the context carries none.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
