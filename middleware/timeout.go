package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/outcall/operation"
)

// Timeout returns middleware that enforces the per-attempt deadline.
// If the operation has a non-zero PerAttemptTimeout, a context.WithTimeout
// wraps the attempt. When the deadline is exceeded the context is cancelled
// and the provider call should return context.DeadlineExceeded, which the
// orchestrator treats as an ordinary attempt failure.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) error {
		if op.PerAttemptTimeout > 0 {
			logger.Debug("attempt deadline set",
				slog.String("operation_key", op.Key),
				slog.Int("attempt", op.Attempt),
				slog.Duration("timeout", op.PerAttemptTimeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, op.PerAttemptTimeout)
			defer cancel()
		}
		return next(ctx)
	}
}
