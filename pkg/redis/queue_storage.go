package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

const (
	fieldData = "data"
	fieldRank = "rank"

	// rankStride separates priorities in a ready set score. Millisecond
	// timestamps stay below it, and 100 strides stay exact in a float64.
	rankStride int64 = 10_000_000_000_000

	// promoteBatch caps how many due tasks one claim moves to the ready set.
	promoteBatch = 100

	maxTxAttempts = 5
)

// claimScript promotes due tasks from each queue's delayed set to its ready
// set, then moves the lowest ranked ready task across all queues to the
// processing set and returns its id.
//
// KEYS: delayed_1, ready_1, ..., delayed_n, ready_n, processing
// ARGV: now (ms), lock deadline (ms), task key prefix, promote batch
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local deadline = tonumber(ARGV[2])
local prefix = ARGV[3]
local batch = tonumber(ARGV[4])
local processing = KEYS[#KEYS]

local bestId, bestScore, bestSet
for i = 1, (#KEYS - 1) / 2 do
  local delayed = KEYS[2 * i - 1]
  local ready = KEYS[2 * i]

  local due = redis.call("ZRANGEBYSCORE", delayed, "-inf", now, "LIMIT", 0, batch)
  for _, id in ipairs(due) do
    redis.call("ZREM", delayed, id)
    local rank = redis.call("HGET", prefix .. id, "rank")
    if rank then
      redis.call("ZADD", ready, rank, id)
    end
  end

  local head = redis.call("ZRANGE", ready, 0, 0, "WITHSCORES")
  if head[1] then
    local score = tonumber(head[2])
    if bestScore == nil or score < bestScore then
      bestId, bestScore, bestSet = head[1], score, ready
    end
  end
end

if bestId == nil then
  return false
end

redis.call("ZREM", bestSet, bestId)
redis.call("ZADD", processing, deadline, bestId)
return bestId
`)

// QueueStorage is a Redis backed work queue repository for queue.Enqueuer and
// queue.Worker.
//
// Every task is a hash holding its JSON and its ready rank. Each queue has a
// delayed set scored by schedule time and a ready set scored by rank, so the
// highest priority wins and, within a priority, the earliest scheduled task.
// Claimed tasks sit in one processing set scored by lock deadline. Dead
// letters are pushed to a list.
type QueueStorage struct {
	client       redis.UniversalClient
	prefix       string
	retryBackoff time.Duration
	retention    time.Duration
	lockInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

var (
	_ queue.EnqueuerRepository = (*QueueStorage)(nil)
	_ queue.WorkerRepository   = (*QueueStorage)(nil)
)

// QueueOption configures a QueueStorage.
type QueueOption func(*QueueStorage)

// WithKeyPrefix namespaces every key. Use a hash tag such as "{push}" for
// Redis Cluster so the claim script sees all keys on one slot.
func WithKeyPrefix(prefix string) QueueOption {
	return func(s *QueueStorage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetryBackoff sets the linear delay applied per retry.
func WithRetryBackoff(d time.Duration) QueueOption {
	return func(s *QueueStorage) {
		if d >= 0 {
			s.retryBackoff = d
		}
	}
}

// WithCompletedRetention sets how long a completed task stays readable.
// Zero keeps it forever.
func WithCompletedRetention(d time.Duration) QueueOption {
	return func(s *QueueStorage) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithLockCheckInterval sets how often RunLockReaper releases expired locks.
func WithLockCheckInterval(d time.Duration) QueueOption {
	return func(s *QueueStorage) {
		if d > 0 {
			s.lockInterval = d
		}
	}
}

// WithQueueClock overrides the clock used for scheduling and locks.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(s *QueueStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithQueueLogger sets the logger used by the lock reaper.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(s *QueueStorage) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithQueueConfig applies the queue settings from cfg.
func WithQueueConfig(cfg Config) QueueOption {
	return func(s *QueueStorage) {
		WithKeyPrefix(cfg.KeyPrefix)(s)
		WithRetryBackoff(cfg.RetryBackoff)(s)
		WithCompletedRetention(cfg.CompletedRetention)(s)
		WithLockCheckInterval(cfg.LockCheckInterval)(s)
	}
}

// NewQueueStorage creates a queue repository on client.
func NewQueueStorage(client redis.UniversalClient, opts ...QueueOption) (*QueueStorage, error) {
	if client == nil {
		return nil, ErrClientNil
	}

	s := &QueueStorage{
		client:       client,
		prefix:       "pushkit:queue",
		retryBackoff: 30 * time.Second,
		retention:    24 * time.Hour,
		lockInterval: time.Minute,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *QueueStorage) taskPrefix() string             { return s.prefix + ":task:" }
func (s *QueueStorage) taskKey(id uuid.UUID) string    { return s.taskPrefix() + id.String() }
func (s *QueueStorage) delayedKey(queue string) string { return s.prefix + ":delayed:" + queue }
func (s *QueueStorage) readyKey(queue string) string   { return s.prefix + ":ready:" + queue }
func (s *QueueStorage) processingKey() string          { return s.prefix + ":processing" }
func (s *QueueStorage) deadLetterKey() string          { return s.prefix + ":dlq" }

func rank(t *queue.Task) int64 {
	return int64(queue.PriorityMax-t.Priority)*rankStride + t.ScheduledAt.UnixMilli()
}

// CreateTask implements queue.EnqueuerRepository.
func (s *QueueStorage) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return queue.ErrPayloadNil
	}

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redis: marshal task: %w", err)
	}

	key := s.taskKey(task.ID)
	created, err := s.client.HSetNX(ctx, key, fieldData, data).Result()
	if err != nil {
		return fmt.Errorf("redis: create task: %w", err)
	}
	if !created {
		return fmt.Errorf("%w: %s", queue.ErrTaskExists, task.ID)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldRank, rank(task))
		pipe.ZAdd(ctx, s.delayedKey(task.Queue), redis.Z{
			Score:  float64(task.ScheduledAt.UnixMilli()),
			Member: task.ID.String(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: schedule task: %w", err)
	}
	return nil
}

// ClaimTask implements queue.WorkerRepository.
func (s *QueueStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	if len(queues) == 0 {
		return nil, queue.ErrNoTaskToClaim
	}

	now := s.now()
	lockUntil := now.Add(lockDuration)

	keys := make([]string, 0, 2*len(queues)+1)
	for _, q := range slices.Compact(slices.Sorted(slices.Values(queues))) {
		keys = append(keys, s.delayedKey(q), s.readyKey(q))
	}
	keys = append(keys, s.processingKey())

	raw, err := claimScript.Run(ctx, s.client, keys,
		now.UnixMilli(), lockUntil.UnixMilli(), s.taskPrefix(), promoteBatch).Text()
	if errors.Is(err, redis.Nil) {
		return nil, queue.ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("redis: claim task: %w", err)
	}

	taskID, err := uuid.Parse(raw)
	if err != nil {
		_ = s.client.ZRem(ctx, s.processingKey(), raw).Err()
		return nil, queue.ErrNoTaskToClaim
	}

	var claimed *queue.Task
	err = s.watch(ctx, func(tx *redis.Tx) error {
		task, err := s.load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		task.Status = queue.TaskStatusProcessing
		task.LockedUntil = &lockUntil
		task.LockedBy = &workerID
		if err := s.save(ctx, tx, task, nil); err != nil {
			return err
		}
		claimed = task
		return nil
	}, s.taskKey(taskID))

	if errors.Is(err, queue.ErrTaskNotFound) {
		_ = s.client.ZRem(ctx, s.processingKey(), raw).Err()
		return nil, queue.ErrNoTaskToClaim
	}
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteTask implements queue.WorkerRepository.
func (s *QueueStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	key := s.taskKey(taskID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		task, err := s.processing(ctx, tx, taskID)
		if err != nil {
			return err
		}

		now := s.now()
		task.Status = queue.TaskStatusCompleted
		task.Result = slices.Clone(result)
		task.ProcessedAt = &now
		task.LockedUntil = nil
		task.LockedBy = nil

		return s.save(ctx, tx, task, func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, s.processingKey(), taskID.String())
			pipe.HDel(ctx, key, fieldRank)
			if s.retention > 0 {
				pipe.Expire(ctx, key, s.retention)
			}
		})
	}, key)
}

// FailTask implements queue.WorkerRepository. A task past its retry budget is
// marked failed, otherwise it goes back to its delayed set with linear backoff.
func (s *QueueStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	key := s.taskKey(taskID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		task, err := s.processing(ctx, tx, taskID)
		if err != nil {
			return err
		}

		task.RetryCount++
		task.Error = &errorMsg
		task.LockedUntil = nil
		task.LockedBy = nil

		if task.RetryCount > task.MaxRetries {
			task.Status = queue.TaskStatusFailed
			return s.save(ctx, tx, task, func(pipe redis.Pipeliner) {
				pipe.ZRem(ctx, s.processingKey(), taskID.String())
			})
		}

		task.Status = queue.TaskStatusPending
		task.ScheduledAt = s.now().Add(time.Duration(task.RetryCount) * s.retryBackoff)
		return s.save(ctx, tx, task, func(pipe redis.Pipeliner) {
			pipe.ZRem(ctx, s.processingKey(), taskID.String())
			pipe.HSet(ctx, key, fieldRank, rank(task))
			pipe.ZAdd(ctx, s.delayedKey(task.Queue), redis.Z{
				Score:  float64(task.ScheduledAt.UnixMilli()),
				Member: taskID.String(),
			})
		})
	}, key)
}

// MoveToDLQ implements queue.WorkerRepository.
func (s *QueueStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	key := s.taskKey(taskID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		task, err := s.load(ctx, tx, taskID)
		if err != nil {
			return err
		}

		entry := queue.DeadLetter{
			ID:         uuid.New(),
			TaskID:     task.ID,
			Queue:      task.Queue,
			TaskName:   task.TaskName,
			Payload:    task.Payload,
			Priority:   task.Priority,
			RetryCount: task.RetryCount,
			FailedAt:   s.now(),
		}
		if task.Error != nil {
			entry.Error = *task.Error
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("redis: marshal dead letter: %w", err)
		}

		id := taskID.String()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, s.deadLetterKey(), data)
			pipe.ZRem(ctx, s.processingKey(), id)
			pipe.ZRem(ctx, s.delayedKey(task.Queue), id)
			pipe.ZRem(ctx, s.readyKey(task.Queue), id)
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

// ExtendLock implements queue.WorkerRepository.
func (s *QueueStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	key := s.taskKey(taskID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		task, err := s.processing(ctx, tx, taskID)
		if err != nil {
			return err
		}

		lockUntil := s.now().Add(duration)
		task.LockedUntil = &lockUntil
		return s.save(ctx, tx, task, func(pipe redis.Pipeliner) {
			pipe.ZAdd(ctx, s.processingKey(), redis.Z{
				Score:  float64(lockUntil.UnixMilli()),
				Member: taskID.String(),
			})
		})
	}, key)
}

// ReleaseExpiredLocks returns processing tasks whose lock passed back to
// pending. Their retry count is kept. It reports how many were released.
func (s *QueueStorage) ReleaseExpiredLocks(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: list expired locks: %w", err)
	}

	var (
		released int
		errs     []error
	)
	for _, raw := range ids {
		taskID, err := uuid.Parse(raw)
		if err != nil {
			errs = append(errs, s.client.ZRem(ctx, s.processingKey(), raw).Err())
			continue
		}

		err = s.watch(ctx, func(tx *redis.Tx) error {
			score, err := tx.ZScore(ctx, s.processingKey(), raw).Result()
			if errors.Is(err, redis.Nil) || score > float64(now) {
				return nil
			}
			if err != nil {
				return err
			}

			task, err := s.load(ctx, tx, taskID)
			if errors.Is(err, queue.ErrTaskNotFound) {
				return tx.ZRem(ctx, s.processingKey(), raw).Err()
			}
			if err != nil {
				return err
			}

			task.Status = queue.TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil
			if err := s.save(ctx, tx, task, func(pipe redis.Pipeliner) {
				pipe.ZRem(ctx, s.processingKey(), raw)
				pipe.ZAdd(ctx, s.delayedKey(task.Queue), redis.Z{
					Score:  float64(task.ScheduledAt.UnixMilli()),
					Member: raw,
				})
			}); err != nil {
				return err
			}
			released++
			return nil
		}, s.taskKey(taskID))
		errs = append(errs, err)
	}
	return released, errors.Join(errs...)
}

// RunLockReaper releases expired locks every lock check interval until ctx is
// done. It is shaped for errgroup.Go.
func (s *QueueStorage) RunLockReaper(ctx context.Context) func() error {
	return func() error {
		ticker := time.NewTicker(s.lockInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := s.ReleaseExpiredLocks(ctx)
				if err != nil && ctx.Err() == nil {
					s.logger.ErrorContext(ctx, "failed to release expired task locks",
						logger.Component("redis_queue"),
						logger.Error(err))
				}
				if n > 0 {
					s.logger.InfoContext(ctx, "released expired task locks",
						logger.Component("redis_queue"),
						slog.Int("tasks", n))
				}
			}
		}
	}
}

// Task returns a stored task. Completed tasks are readable until their
// retention passes.
func (s *QueueStorage) Task(ctx context.Context, taskID uuid.UUID) (*queue.Task, error) {
	return s.load(ctx, s.client, taskID)
}

// DeadLetters returns up to limit dead letters, newest first. A non-positive
// limit returns all of them.
func (s *QueueStorage) DeadLetters(ctx context.Context, limit int64) ([]queue.DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	items, err := s.client.LRange(ctx, s.deadLetterKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list dead letters: %w", err)
	}

	out := make([]queue.DeadLetter, 0, len(items))
	for _, item := range items {
		var entry queue.DeadLetter
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("redis: decode dead letter: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Pending counts the tasks waiting in q, due or not.
func (s *QueueStorage) Pending(ctx context.Context, q string) (int64, error) {
	pipe := s.client.Pipeline()
	delayed := pipe.ZCard(ctx, s.delayedKey(q))
	ready := pipe.ZCard(ctx, s.readyKey(q))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: count pending tasks: %w", err)
	}
	return delayed.Val() + ready.Val(), nil
}

func (s *QueueStorage) load(ctx context.Context, c redis.Cmdable, taskID uuid.UUID) (*queue.Task, error) {
	data, err := c.HGet(ctx, s.taskKey(taskID), fieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load task %s: %w", taskID, err)
	}

	var task queue.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("redis: decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// processing loads a task that is currently claimed.
func (s *QueueStorage) processing(ctx context.Context, tx *redis.Tx, taskID uuid.UUID) (*queue.Task, error) {
	if err := tx.ZScore(ctx, s.processingKey(), taskID.String()).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			if _, lerr := s.load(ctx, tx, taskID); errors.Is(lerr, queue.ErrTaskNotFound) {
				return nil, lerr
			}
			return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotProcessing, taskID)
		}
		return nil, fmt.Errorf("redis: check task %s: %w", taskID, err)
	}
	return s.load(ctx, tx, taskID)
}

// save writes the task JSON and the extra commands in one transaction.
func (s *QueueStorage) save(ctx context.Context, tx *redis.Tx, task *queue.Task, extra func(redis.Pipeliner)) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("redis: marshal task: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.taskKey(task.ID), fieldData, data)
		if extra != nil {
			extra(pipe)
		}
		return nil
	})
	return err
}

// watch runs fn in an optimistic transaction on keys, retrying on conflicts.
func (s *QueueStorage) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for range maxTxAttempts {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("redis: task transaction kept conflicting: %w", redis.TxFailedErr)
}
