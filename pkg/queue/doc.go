// Package queue provides a repository-agnostic task queue with immediate and
// delayed execution, retry budgets and a dead letter queue.
//
// The package is organised around two components:
//
//   - Enqueuer: adds tasks to the queue and returns their id
//   - Worker: claims pending tasks and dispatches them to a registered Handler
//
// Components interact only through the EnqueuerRepository and WorkerRepository
// interfaces. MemoryStorage implements both for tests and local runs; a Redis
// backed implementation lives in package redis.
//
// # Usage
//
//	type SendPayload struct {
//	    ID string `json:"id"`
//	}
//
//	storage := queue.NewMemoryStorage()
//	e, _ := queue.NewEnqueuer(storage, queue.WithDefaultQueue("push:queued"))
//	id, err := e.Enqueue(ctx, SendPayload{ID: "abc"})
//
//	w, _ := queue.NewWorker(storage, queue.WithQueues("push:queued"))
//	_ = w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p SendPayload) (any, error) {
//	    return map[string]string{"id": p.ID}, nil
//	}))
//	_ = w.Start(ctx)
//	defer w.Stop(stopCtx)
//
// The value returned by a handler is JSON encoded and stored as Task.Result.
// The id of the task being handled is available through TaskIDFromContext.
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrInvalidPriority, ErrNoHandlers,
// ErrShutdownTimeout) can be checked with errors.Is.
package queue
