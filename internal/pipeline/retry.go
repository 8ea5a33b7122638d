package pipeline

import (
	"context"
	"time"

	"github.com/caretalk-labs/caretalk-core/internal/config"
)

// Do runs op under the configured per-call timeout, retrying up to
// MaxAttempts times. The defaults are a single attempt with no timeout.
func Do[T any](ctx context.Context, rc config.RetryConfig, op func(context.Context) (T, error)) (T, error) {
	attempts := rc.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if rc.TimeoutMS > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(rc.TimeoutMS)*time.Millisecond)
		}
		result, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
