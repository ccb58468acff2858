package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

type workerPayload struct {
	ID string `json:"id"`
}

func newTestWorker(t *testing.T, ms *queue.MemoryStorage, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()

	opts = append([]queue.WorkerOption{
		queue.WithQueues("q"),
		queue.WithPullInterval(10 * time.Millisecond),
		queue.WithWorkerLogger(logger.Discard()),
	}, opts...)

	w, err := queue.NewWorker(ms, opts...)
	require.NoError(t, err)
	return w
}

func enqueue(t *testing.T, ms *queue.MemoryStorage, payload any, opts ...queue.EnqueueOption) uuid.UUID {
	t.Helper()

	e, err := queue.NewEnqueuer(ms, queue.WithDefaultQueue("q"), queue.WithDefaultMaxRetries(0))
	require.NoError(t, err)

	id, err := e.Enqueue(context.Background(), payload, opts...)
	require.NoError(t, err)
	return id
}

func stopWorker(t *testing.T, w *queue.Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}

func taskStatus(ms *queue.MemoryStorage, id uuid.UUID) queue.TaskStatus {
	task, ok := ms.Task(id)
	if !ok {
		return ""
	}
	return task.Status
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	w, err := queue.NewWorker(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	assert.Nil(t, w)
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms)

	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
	assert.ErrorIs(t, w.Stop(context.Background()), queue.ErrWorkerNotStarted)

	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		return nil, nil
	})))
	require.NoError(t, w.RegisterHandler(nil))

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.Running())
	assert.ErrorIs(t, w.Start(context.Background()), queue.ErrWorkerAlreadyStarted)

	stopWorker(t, w)
	assert.False(t, w.Running())

	require.NoError(t, w.Start(context.Background()))
	stopWorker(t, w)
}

func TestWorker_ProcessesTasks(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms)

	var seen atomic.Value
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, p workerPayload) (any, error) {
		if id, ok := queue.TaskIDFromContext(ctx); ok {
			seen.Store(id)
		}
		return map[string]string{"id": p.ID}, nil
	})))

	id := enqueue(t, ms, workerPayload{ID: "abc"})

	require.NoError(t, w.Start(context.Background()))
	defer stopWorker(t, w)

	require.Eventually(t, func() bool {
		return taskStatus(ms, id) == queue.TaskStatusCompleted
	}, time.Second, 5*time.Millisecond)

	task, _ := ms.Task(id)
	assert.JSONEq(t, `{"id":"abc"}`, string(task.Result))
	assert.Equal(t, id, seen.Load())
}

func TestWorker_FailedTasksGoToDeadLetters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler queue.Handler
		errMsg  string
	}{
		{
			name: "handler error",
			handler: queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
				return nil, errors.New("notification abc does not exist")
			}),
			errMsg: "notification abc does not exist",
		},
		{
			name: "handler panic",
			handler: queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
				panic("kaboom")
			}),
			errMsg: "panic in handler: kaboom",
		},
		{
			name:    "missing handler",
			handler: queue.NewNamedTaskHandler("other", func(context.Context, workerPayload) (any, error) { return nil, nil }),
			errMsg:  "no handler registered for task type: queue_test.workerPayload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ms := newMemoryStorage(t)
			w := newTestWorker(t, ms)
			require.NoError(t, w.RegisterHandler(tt.handler))

			id := enqueue(t, ms, workerPayload{ID: "abc"})

			require.NoError(t, w.Start(context.Background()))
			defer stopWorker(t, w)

			require.Eventually(t, func() bool {
				return len(ms.DeadLetters()) == 1
			}, time.Second, 5*time.Millisecond)

			dead := ms.DeadLetters()[0]
			assert.Equal(t, id, dead.TaskID)
			assert.Equal(t, tt.errMsg, dead.Error)
		})
	}
}

func TestWorker_RetriesBeforeDeadLetter(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t, queue.WithRetryBackoff(0))
	w := newTestWorker(t, ms)

	var attempts atomic.Int32
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		attempts.Add(1)
		return nil, errors.New("unavailable")
	})))

	enqueue(t, ms, workerPayload{}, queue.WithMaxRetries(2))

	require.NoError(t, w.Start(context.Background()))
	defer stopWorker(t, w)

	require.Eventually(t, func() bool {
		return len(ms.DeadLetters()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorker_FillsAllSlots(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms, queue.WithMaxConcurrentTasks(3), queue.WithPullInterval(time.Hour))

	release := make(chan struct{})
	var running atomic.Int32
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		running.Add(1)
		<-release
		return nil, nil
	})))

	for range 4 {
		enqueue(t, ms, workerPayload{})
	}

	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return running.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return running.Load() > 3 }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	stopWorker(t, w)
}

func TestWorker_StopTimeout(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		close(started)
		<-release
		return nil, nil
	})))

	id := enqueue(t, ms, workerPayload{})
	require.NoError(t, w.Start(context.Background()))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Stop(ctx)
	assert.ErrorIs(t, err, queue.ErrShutdownTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool {
		return taskStatus(ms, id) == queue.TaskStatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestWorker_StopWaitsForInFlightTasks(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms)

	started := make(chan struct{})
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	})))

	id := enqueue(t, ms, workerPayload{})
	require.NoError(t, w.Start(context.Background()))
	<-started

	stopWorker(t, w)
	assert.Equal(t, queue.TaskStatusCompleted, taskStatus(ms, id))
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()

	ms := newMemoryStorage(t)
	w := newTestWorker(t, ms)
	require.NoError(t, w.RegisterHandler(queue.NewTaskHandler(func(context.Context, workerPayload) (any, error) {
		return nil, nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, time.Second)() }()

	require.Eventually(t, w.Running, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
