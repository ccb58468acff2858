package async

import (
	"context"
	"errors"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Await waits for the asynchronous function to complete and returns its result and error.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitContext waits for completion or for ctx to be done, whichever comes first.
// A context error does not stop the underlying computation.
func (f *Future[U]) AwaitContext(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, errors.Join(ErrAbandoned, ctx.Err())
	}
}

// IsComplete reports whether the computation has finished without blocking.
func (f *Future[U]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async runs fn(ctx, param) in its own goroutine and returns a Future for its result.
// A context that is already done completes the Future with the context error
// without calling fn.
func Async[T any, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		f.result, f.err = fn(ctx, param)
	}()

	return f
}

// WaitAll waits for the futures in order and stops at the first error.
// Futures after the failing one keep running; their results are not collected.
func WaitAll[U any](futures ...*Future[U]) ([]U, error) {
	results := make([]U, len(futures))

	for i, future := range futures {
		result, err := future.Await()
		results[i] = result
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

// Outcome pairs a settled future's value with its error.
type Outcome[U any] struct {
	Value U
	Err   error
}

// Settle waits for every future and returns their outcomes positionally,
// together with all errors joined. The joined error is nil when every future
// succeeded.
func Settle[U any](futures ...*Future[U]) ([]Outcome[U], error) {
	outcomes := make([]Outcome[U], len(futures))
	errs := make([]error, 0)

	for i, future := range futures {
		value, err := future.Await()
		outcomes[i] = Outcome[U]{Value: value, Err: err}
		if err != nil {
			errs = append(errs, err)
		}
	}

	return outcomes, errors.Join(errs...)
}
