package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/outcall/operation"
)

// Logging returns middleware that logs attempt start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		logger.Info("attempt started",
			slog.String("operation_key", op.Key),
			slog.String("operation_id", op.ID.String()),
			slog.Int("attempt", op.Attempt),
			slog.Int("max_retries", op.MaxRetries),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("attempt failed",
				slog.String("operation_key", op.Key),
				slog.String("operation_id", op.ID.String()),
				slog.Int("attempt", op.Attempt),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("attempt completed",
				slog.String("operation_key", op.Key),
				slog.String("operation_id", op.ID.String()),
				slog.Int("attempt", op.Attempt),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
