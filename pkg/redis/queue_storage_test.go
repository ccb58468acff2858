package redis_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/redis"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newQueueStorage(t *testing.T, opts ...redis.QueueOption) (*redis.QueueStorage, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, err := redis.NewQueueStorage(client, append([]redis.QueueOption{
		redis.WithKeyPrefix("test"),
		redis.WithQueueLogger(logger.Discard()),
	}, opts...)...)
	require.NoError(t, err)
	return s, mr
}

func newTask(queueName string, priority queue.Priority, scheduledAt time.Time) *queue.Task {
	return &queue.Task{
		ID:          uuid.New(),
		Queue:       queueName,
		TaskName:    "push.notification",
		Payload:     json.RawMessage(`{"_id":"n1"}`),
		Status:      queue.TaskStatusPending,
		Priority:    priority,
		MaxRetries:  1,
		ScheduledAt: scheduledAt,
		CreatedAt:   scheduledAt,
	}
}

func TestNewQueueStorageRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := redis.NewQueueStorage(nil)
	assert.ErrorIs(t, err, redis.ErrClientNil)
}

func TestQueueStorageCreateTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newQueueStorage(t)
	task := newTask("q", queue.PriorityDefault, time.Now())

	require.NoError(t, s.CreateTask(ctx, task))
	assert.ErrorIs(t, s.CreateTask(ctx, task), queue.ErrTaskExists)
	assert.ErrorIs(t, s.CreateTask(ctx, nil), queue.ErrPayloadNil)

	stored, err := s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
	assert.JSONEq(t, `{"_id":"n1"}`, string(stored.Payload))

	n, err := s.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueueStorageClaimOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Now().Truncate(time.Millisecond)}
	s, _ := newQueueStorage(t, redis.WithQueueClock(c.Now))

	low := newTask("a", queue.PriorityLow, c.Now().Add(-2*time.Second))
	early := newTask("b", queue.PriorityHigh, c.Now().Add(-2*time.Second))
	late := newTask("a", queue.PriorityHigh, c.Now().Add(-time.Second))
	future := newTask("a", queue.PriorityMax, c.Now().Add(time.Hour))
	other := newTask("c", queue.PriorityMax, c.Now().Add(-time.Second))
	for _, task := range []*queue.Task{low, early, late, future, other} {
		require.NoError(t, s.CreateTask(ctx, task))
	}

	workerID := uuid.New()
	var got []uuid.UUID
	for range 3 {
		task, err := s.ClaimTask(ctx, workerID, []string{"a", "b"}, time.Minute)
		require.NoError(t, err)
		got = append(got, task.ID)

		assert.Equal(t, queue.TaskStatusProcessing, task.Status)
		require.NotNil(t, task.LockedBy)
		assert.Equal(t, workerID, *task.LockedBy)
		require.NotNil(t, task.LockedUntil)
		assert.True(t, task.LockedUntil.Equal(c.Now().Add(time.Minute)))
	}
	assert.Equal(t, []uuid.UUID{early.ID, late.ID, low.ID}, got)

	_, err := s.ClaimTask(ctx, workerID, []string{"a", "b"}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)

	c.Advance(2 * time.Hour)
	task, err := s.ClaimTask(ctx, workerID, []string{"a", "b"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, future.ID, task.ID)

	_, err = s.ClaimTask(ctx, workerID, nil, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestQueueStorageCompleteTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, mr := newQueueStorage(t, redis.WithCompletedRetention(time.Hour))
	task := newTask("q", queue.PriorityDefault, time.Now().Add(-time.Second))
	require.NoError(t, s.CreateTask(ctx, task))

	assert.ErrorIs(t, s.CompleteTask(ctx, task.ID, nil), queue.ErrTaskNotProcessing)
	assert.ErrorIs(t, s.CompleteTask(ctx, uuid.New(), nil), queue.ErrTaskNotFound)

	_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CompleteTask(ctx, task.ID, json.RawMessage(`{"message":"success"}`)))

	stored, err := s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusCompleted, stored.Status)
	assert.JSONEq(t, `{"message":"success"}`, string(stored.Result))
	assert.NotNil(t, stored.ProcessedAt)
	assert.Nil(t, stored.LockedBy)
	assert.Equal(t, time.Hour, mr.TTL("test:task:"+task.ID.String()))

	assert.ErrorIs(t, s.CompleteTask(ctx, task.ID, nil), queue.ErrTaskNotProcessing)
}

func TestQueueStorageFailTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Now().Truncate(time.Millisecond)}
	s, _ := newQueueStorage(t, redis.WithQueueClock(c.Now), redis.WithRetryBackoff(time.Minute))
	task := newTask("q", queue.PriorityDefault, c.Now().Add(-time.Second))
	require.NoError(t, s.CreateTask(ctx, task))

	_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.FailTask(ctx, task.ID, "boom"))

	stored, err := s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
	assert.Equal(t, int8(1), stored.RetryCount)
	require.NotNil(t, stored.Error)
	assert.Equal(t, "boom", *stored.Error)
	assert.True(t, stored.ScheduledAt.Equal(c.Now().Add(time.Minute)))

	_, err = s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim, "backoff delays the retry")

	c.Advance(2 * time.Minute)
	_, err = s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.FailTask(ctx, task.ID, "boom again"))

	stored, err = s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusFailed, stored.Status)
	assert.Equal(t, int8(2), stored.RetryCount)

	n, err := s.Pending(ctx, "q")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueStorageMoveToDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newQueueStorage(t)
	task := newTask("q", queue.PriorityDefault, time.Now().Add(-time.Second))
	require.NoError(t, s.CreateTask(ctx, task))

	_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.FailTask(ctx, task.ID, "boom"))
	require.NoError(t, s.MoveToDLQ(ctx, task.ID))

	_, err = s.Task(ctx, task.ID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.ErrorIs(t, s.MoveToDLQ(ctx, task.ID), queue.ErrTaskNotFound)

	letters, err := s.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, task.ID, letters[0].TaskID)
	assert.Equal(t, "boom", letters[0].Error)
	assert.Equal(t, "push.notification", letters[0].TaskName)
	assert.JSONEq(t, `{"_id":"n1"}`, string(letters[0].Payload))
}

func TestQueueStorageLocks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Now().Truncate(time.Millisecond)}
	s, _ := newQueueStorage(t, redis.WithQueueClock(c.Now))
	task := newTask("q", queue.PriorityDefault, c.Now().Add(-time.Second))
	require.NoError(t, s.CreateTask(ctx, task))

	assert.ErrorIs(t, s.ExtendLock(ctx, task.ID, time.Minute), queue.ErrTaskNotProcessing)

	_, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)

	c.Advance(30 * time.Second)
	require.NoError(t, s.ExtendLock(ctx, task.ID, time.Minute))

	c.Advance(45 * time.Second)
	n, err := s.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "extended lock is still held")

	c.Advance(time.Minute)
	n, err = s.ReleaseExpiredLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := s.Task(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusPending, stored.Status)
	assert.Nil(t, stored.LockedBy)
	assert.Zero(t, stored.RetryCount)

	assert.ErrorIs(t, s.CompleteTask(ctx, task.ID, nil), queue.ErrTaskNotProcessing)

	claimed, err := s.ClaimTask(ctx, uuid.New(), []string{"q"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, task.ID, claimed.ID)
}

func TestQueueStorageWithWorker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newQueueStorage(t)

	enq, err := queue.NewEnqueuer(s, queue.WithDefaultQueue("q"), queue.WithDefaultMaxRetries(0))
	require.NoError(t, err)

	done := make(chan string, 1)
	w, err := queue.NewWorker(s,
		queue.WithQueues("q"),
		queue.WithPullInterval(10*time.Millisecond),
		queue.WithWorkerLogger(logger.Discard()),
	)
	require.NoError(t, err)
	require.NoError(t, w.RegisterHandler(queue.NewNamedTaskHandler("echo",
		func(_ context.Context, p struct {
			ID string `json:"_id"`
		}) (any, error) {
			done <- p.ID
			return map[string]string{"id": p.ID}, nil
		})))

	id, err := enq.Enqueue(ctx, map[string]string{"_id": "n1"}, queue.WithTaskName("echo"))
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Stop(stopCtx)
	})

	select {
	case got := <-done:
		assert.Equal(t, "n1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}

	require.Eventually(t, func() bool {
		task, err := s.Task(ctx, id)
		return err == nil && task.Status == queue.TaskStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	task, err := s.Task(ctx, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n1"}`, string(task.Result))
}

func TestRunLockReaperStopsWithContext(t *testing.T) {
	t.Parallel()

	s, _ := newQueueStorage(t, redis.WithLockCheckInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.RunLockReaper(ctx)() }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
