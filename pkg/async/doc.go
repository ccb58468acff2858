// Package async provides generic helpers for running computations
// concurrently and collecting their results.
//
// Async starts a function in its own goroutine and returns a *Future. Await
// blocks for the result; AwaitContext stops waiting when a context is done
// without cancelling the work itself.
//
// WaitAll returns as soon as one future fails (fail-fast reporting), while
// Settle waits for every future and reports each outcome positionally, which
// suits batch jobs where every item persists its own result.
//
// # Usage
//
//	futures := make([]*async.Future[*push.Notification], 0, len(records))
//	for _, n := range records {
//		futures = append(futures, async.Async(ctx, n, dispatch))
//	}
//	outcomes, err := async.Settle(futures...)
package async
