package async

import (
	"context"
	"time"

	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// A zero timeout means the task only ends when parentCtx does.
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	go func() {
		ctx, cancel := withOptionalTimeout(parentCtx, timeout)
		defer cancel()

		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// Every runs fn on each tick until ctx is done. Each run goes through the
// same panic recovery as SafeGo, so one bad tick does not stop the loop.
func Every(ctx context.Context, logger *observability.Logger, interval time.Duration, taskName string, fn func(context.Context)) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				func() {
					defer observability.RecoverPanic(logger, taskName)
					fn(ctx)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
