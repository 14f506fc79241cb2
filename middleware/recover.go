package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/outcall/operation"
)

// Recover returns middleware that recovers from panics in the attempt chain.
// Panics are converted to errors and logged with a stack trace, so a buggy
// provider client counts as a failed attempt instead of crashing the process.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, op *operation.Operation, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("provider attempt panicked",
					slog.String("operation_key", op.Key),
					slog.String("operation_id", op.ID.String()),
					slog.Int("attempt", op.Attempt),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in operation %s: %v", op.Key, r)
			}
		}()
		return next(ctx)
	}
}
