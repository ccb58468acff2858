package push_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

type runnerMock struct {
	mock.Mock
}

func (m *runnerMock) RegisterHandler(h queue.Handler) error {
	return m.Called(h).Error(0)
}

func (m *runnerMock) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *runnerMock) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newPushWorker(t *testing.T, runner push.JobRunner, opts ...push.WorkerOption) *push.Worker {
	t.Helper()

	opts = append([]push.WorkerOption{push.WithWorkerLogger(logger.Discard())}, opts...)
	w, err := push.NewWorker(runner, opts...)
	require.NoError(t, err)
	return w
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	w, err := push.NewWorker(nil)
	assert.ErrorIs(t, err, push.ErrNoQueue)
	assert.Nil(t, w)
}

func TestWorker_StartRequiresCollaborators(t *testing.T) {
	t.Parallel()

	runner := &runnerMock{}

	w := newPushWorker(t, runner)
	assert.ErrorIs(t, w.Start(context.Background()), push.ErrNoStorage)

	w = newPushWorker(t, runner, push.WithWorkerStorage(push.NewMemoryStorage()))
	assert.ErrorIs(t, w.Start(context.Background()), push.ErrNoDispatcher)

	runner.AssertNotCalled(t, "Start", mock.Anything)
}

func TestWorker_StartIsIdempotent(t *testing.T) {
	t.Parallel()

	runner := &runnerMock{}
	runner.On("RegisterHandler", mock.Anything).Return(nil).Once()
	runner.On("Start", mock.Anything).Return(nil).Once()
	runner.On("Stop", mock.Anything).Return(nil).Once()

	d := newDispatcher(t, push.NewMemoryStorage())
	w := newPushWorker(t, runner, push.WithWorkerDispatcher(d))

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
	require.NoError(t, w.Stop(context.Background()))

	runner.AssertExpectations(t)
}

func TestWorker_StartToleratesRunningRunner(t *testing.T) {
	t.Parallel()

	runner := &runnerMock{}
	runner.On("RegisterHandler", mock.Anything).Return(nil)
	runner.On("Start", mock.Anything).Return(queue.ErrWorkerAlreadyStarted)

	w := newPushWorker(t, runner, push.WithWorkerDispatcher(newDispatcher(t, push.NewMemoryStorage())))
	assert.NoError(t, w.Start(context.Background()))
}

func TestWorker_Handle(t *testing.T) {
	t.Parallel()

	store := push.NewMemoryStorage()
	d := newDispatcher(t, store)
	w := newPushWorker(t, &runnerMock{}, push.WithWorkerDispatcher(d))

	t.Run("job without id is a no-op", func(t *testing.T) {
		result, err := w.Handle(context.Background(), push.Job{})
		assert.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("unknown id fails the job", func(t *testing.T) {
		before := store.Len()

		result, err := w.Handle(context.Background(), push.Job{ID: "missing"})
		assert.ErrorIs(t, err, push.ErrNotFound)
		assert.Contains(t, err.Error(), "missing")
		assert.Nil(t, result)
		assert.Equal(t, before, store.Len())
	})

	t.Run("dispatches and reports the response", func(t *testing.T) {
		n := seed(t, d, false, "abc")

		result, err := w.Handle(context.Background(), push.Job{ID: n.ID})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": push.SuccessMessage}, result)

		stored, err := store.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSent())
	})

	t.Run("dispatch failure fails the job", func(t *testing.T) {
		live := newDispatcher(t, store, push.WithMode(push.ModeLive), push.WithTransport(
			push.TransportFunc(func(context.Context, push.Message, []string, push.SendOptions) (map[string]any, error) {
				return nil, &push.StatusError{Code: 503}
			})))
		lw := newPushWorker(t, &runnerMock{}, push.WithWorkerDispatcher(live))
		n := seed(t, live, false, "abc")

		_, err := lw.Handle(context.Background(), push.Job{ID: n.ID})
		assert.ErrorIs(t, err, push.ErrServerUnavailable)
	})
}

func TestWorker_EndToEnd(t *testing.T) {
	t.Parallel()

	ms := newQueueStorage(t)
	store := push.NewMemoryStorage()
	d := newDispatcher(t, store)
	p := newPublisher(t, d, push.WithEnqueuer(newEnqueuer(t, ms)))

	qw, err := queue.NewWorker(ms,
		queue.WithQueues(push.DefaultQueueName),
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithMaxConcurrentTasks(4),
		queue.WithWorkerLogger(logger.Discard()),
	)
	require.NoError(t, err)

	w := newPushWorker(t, qw, push.WithWorkerDispatcher(d), push.WithShutdownTimeout(time.Second))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	t.Run("queued notification gets sent", func(t *testing.T) {
		sub := p.Subscribe(context.Background())
		defer sub.Close()

		n, err := p.Queue(context.Background(), request("abc"), nil)
		require.NoError(t, err)
		ev := nextEvent(t, sub)
		require.Equal(t, push.EventQueued, ev.Kind)

		require.Eventually(t, func() bool {
			task, ok := ms.Task(ev.JobID)
			return ok && task.Status == queue.TaskStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)

		task, _ := ms.Task(ev.JobID)
		var result map[string]any
		require.NoError(t, json.Unmarshal(task.Result, &result))
		assert.Equal(t, push.SuccessMessage, result["message"])

		stored, err := store.Get(context.Background(), n.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSent())
	})

	t.Run("stale job is dead lettered", func(t *testing.T) {
		e := newEnqueuer(t, ms)
		jobID, err := e.Enqueue(context.Background(), push.Job{ID: "gone"},
			queue.WithQueue(push.DefaultQueueName),
			queue.WithTaskName(push.JobName),
			queue.WithMaxRetries(0),
		)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			for _, dl := range ms.DeadLetters() {
				if dl.TaskID == jobID {
					return true
				}
			}
			return false
		}, 2*time.Second, 10*time.Millisecond)

		for _, dl := range ms.DeadLetters() {
			if dl.TaskID == jobID {
				assert.Contains(t, dl.Error, "does not exist")
				assert.Contains(t, dl.Error, "gone")
			}
		}
	})
}
