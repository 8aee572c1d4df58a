// Package async provides panic-safe background execution.
//
// SafeGo runs a task in its own goroutine with a timeout, recovers panics and
// logs failures instead of crashing the process:
//
//	async.SafeGo(ctx, logger, 5*time.Second, "usage refetch", func(ctx context.Context) error {
//		return tracker.Refresh(ctx)
//	})
//
// The replica health loop in pkg/storage/postgres and the optimistic usage
// refetch in pkg/client both run through SafeGo.
package async
