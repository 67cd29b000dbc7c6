package services

import (
	"context"
	"log/slog"

	"asso-manager/internal/pkg/logger"
)

// serviceLogger prefers a request-scoped logger from ctx and tags it
// with the service and operation names.
func serviceLogger(ctx context.Context, base *slog.Logger, service, operation string) *slog.Logger {
	l := logger.FromContext(ctx)
	if l == nil {
		l = base
	}
	if l == nil {
		l = slog.Default()
	}
	return l.With(
		slog.String("service", service),
		slog.String("operation", operation),
	)
}
