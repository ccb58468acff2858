package queue

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements all queue repository interfaces for testing and local development
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   map[uuid.UUID]*DeadLetter

	byQueue  map[string][]uuid.UUID
	byStatus map[TaskStatus][]uuid.UUID

	retryBackoff time.Duration

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithRetryBackoff sets the linear delay applied per failed attempt.
func WithRetryBackoff(d time.Duration) MemoryOption {
	return func(ms *MemoryStorage) {
		if d >= 0 {
			ms.retryBackoff = d
		}
	}
}

// WithLockCheckInterval sets how often expired locks are released.
func WithLockCheckInterval(d time.Duration) MemoryOption {
	return func(ms *MemoryStorage) {
		if d > 0 {
			ms.lockTicker.Reset(d)
		}
	}
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:        make(map[uuid.UUID]*Task),
		dlq:          make(map[uuid.UUID]*DeadLetter),
		byQueue:      make(map[string][]uuid.UUID),
		byStatus:     make(map[TaskStatus][]uuid.UUID),
		retryBackoff: 30 * time.Second,
		lockTicker:   time.NewTicker(time.Second),
		done:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ms)
	}

	go ms.lockExpirationManager()

	return ms
}

// Close stops the background goroutines
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateTask implements EnqueuerRepository
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %s", ErrTaskExists, task.ID)
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy

	ms.byQueue[task.Queue] = append(ms.byQueue[task.Queue], task.ID)
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)

	return nil
}

// ClaimTask implements WorkerRepository.
// Higher priority wins; within a priority the earliest scheduled task wins.
func (ms *MemoryStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var bestTask *Task

	for _, taskID := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[taskID]

		if !slices.Contains(queues, task.Queue) {
			continue
		}
		if task.ScheduledAt.After(now) {
			continue
		}
		if task.LockedUntil != nil && task.LockedUntil.After(now) {
			continue
		}

		if bestTask == nil ||
			task.Priority > bestTask.Priority ||
			(task.Priority == bestTask.Priority && task.ScheduledAt.Before(bestTask.ScheduledAt)) {
			bestTask = task
		}
	}

	if bestTask == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	bestTask.Status = TaskStatusProcessing
	bestTask.LockedUntil = &lockUntil
	bestTask.LockedBy = &workerID

	ms.moveStatus(bestTask.ID, TaskStatusPending, TaskStatusProcessing)

	taskCopy := *bestTask
	return &taskCopy, nil
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.Result = slices.Clone(result)
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil

	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusCompleted)

	return nil
}

// FailTask implements WorkerRepository. A task whose retry count exceeds its
// budget is marked failed, otherwise it is rescheduled with linear backoff.
func (ms *MemoryStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount > task.MaxRetries {
		task.Status = TaskStatusFailed
		ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusFailed)
		return nil
	}

	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * ms.retryBackoff)
	ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)

	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	entry := &DeadLetter{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}

	ms.dlq[entry.ID] = entry

	removeFromIndex(ms.byStatus, task.Status, taskID)
	removeFromIndex(ms.byQueue, task.Queue, taskID)
	delete(ms.tasks, taskID)

	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	lockUntil := time.Now().Add(duration)
	task.LockedUntil = &lockUntil

	return nil
}

// Task returns a copy of the stored task.
func (ms *MemoryStorage) Task(taskID uuid.UUID) (Task, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns copies of the tasks in queue ordered by creation time.
func (ms *MemoryStorage) Tasks(queue string) []Task {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Task, 0, len(ms.byQueue[queue]))
	for _, id := range ms.byQueue[queue] {
		out = append(out, *ms.tasks[id])
	}
	slices.SortStableFunc(out, func(a, b Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// DeadLetters returns copies of the dead letter entries ordered by failure time.
func (ms *MemoryStorage) DeadLetters() []DeadLetter {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]DeadLetter, 0, len(ms.dlq))
	for _, entry := range ms.dlq {
		out = append(out, *entry)
	}
	slices.SortFunc(out, func(a, b DeadLetter) int {
		return cmp.Or(a.FailedAt.Compare(b.FailedAt), cmp.Compare(a.TaskID.String(), b.TaskID.String()))
	})
	return out
}

// processing must be called with the mutex held.
func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, exists := ms.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}

func (ms *MemoryStorage) moveStatus(taskID uuid.UUID, from, to TaskStatus) {
	removeFromIndex(ms.byStatus, from, taskID)
	ms.byStatus[to] = append(ms.byStatus[to], taskID)
}

func removeFromIndex[K comparable](index map[K][]uuid.UUID, key K, taskID uuid.UUID) {
	index[key] = slices.DeleteFunc(index[key], func(id uuid.UUID) bool {
		return id == taskID
	})
}

// lockExpirationManager recovers tasks from crashed workers by releasing
// locks past their LockedUntil time.
func (ms *MemoryStorage) lockExpirationManager() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets processing tasks with an expired lock to pending.
// The retry count is kept.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var expired []uuid.UUID
	for _, taskID := range ms.byStatus[TaskStatusProcessing] {
		task := ms.tasks[taskID]
		if task.LockedUntil != nil && task.LockedUntil.Before(now) {
			expired = append(expired, taskID)
		}
	}

	for _, taskID := range expired {
		task := ms.tasks[taskID]
		task.Status = TaskStatusPending
		task.LockedUntil = nil
		task.LockedBy = nil
		ms.moveStatus(taskID, TaskStatusProcessing, TaskStatusPending)
	}
}
