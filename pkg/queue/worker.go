package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// WorkerRepository defines the interface for worker operations
type WorkerRepository interface {
	// ClaimTask atomically claims the next available task.
	// Returns ErrNoTaskToClaim when nothing is ready.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)

	// CompleteTask marks task as completed and stores its result
	CompleteTask(ctx context.Context, taskID uuid.UUID, result json.RawMessage) error

	// FailTask marks task as failed and increments retry count
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error

	// MoveToDLQ moves task to dead letter queue
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error

	// ExtendLock extends the lock timeout for long-running tasks
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker processes tasks from the queue
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	mu       sync.RWMutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	active *workerRun
}

// workerRun tracks one Start/Stop cycle.
type workerRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		logger:       options.logger,
	}, nil
}

// RegisterHandler registers a single task handler
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[handler.Name()] = handler
	return nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active != nil {
		return ErrWorkerAlreadyStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &workerRun{cancel: cancel, done: make(chan struct{})}
	w.active = run

	go w.run(runCtx, run)

	w.logger.Info("worker started",
		logger.WorkerID(w.workerID.String()),
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Running reports whether the worker has been started and not stopped.
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active != nil
}

// Stop stops claiming new tasks and waits for in-flight ones until ctx is done.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	run := w.active
	w.active = nil
	w.mu.Unlock()

	if run == nil {
		return ErrWorkerNotStarted
	}

	run.cancel()
	<-run.done

	w.logger.Info("worker stopping, waiting for active tasks to complete",
		logger.WorkerID(w.workerID.String()))

	finished := make(chan struct{})
	go func() {
		run.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		w.logger.Info("worker stopped", logger.WorkerID(w.workerID.String()))
		return nil
	case <-ctx.Done():
		w.logger.Warn("worker stop deadline exceeded with tasks in flight",
			logger.WorkerID(w.workerID.String()))
		return errors.Join(ErrShutdownTimeout, ctx.Err())
	}
}

// Run starts the worker and returns a function suitable for errgroup.
// The worker is stopped with shutdownTimeout once ctx is cancelled.
func (w *Worker) Run(ctx context.Context, shutdownTimeout time.Duration) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return w.Stop(stopCtx)
	}
}

// run is the main processing loop. WaitGroup additions only happen here,
// so Stop can wait on the group once done is closed.
func (w *Worker) run(ctx context.Context, run *workerRun) {
	defer close(run.done)

	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	w.fill(ctx, run)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.fill(ctx, run)
		}
	}
}

// fill claims tasks until every slot is busy or nothing is ready.
func (w *Worker) fill(ctx context.Context, run *workerRun) {
	for ctx.Err() == nil {
		select {
		case w.sem <- struct{}{}:
		default:
			w.logger.Debug("all worker slots busy, skipping tick",
				logger.WorkerID(w.workerID.String()))
			return
		}

		task, err := w.repo.ClaimTask(ctx, w.workerID, w.queues, w.lockTimeout)
		if err != nil || task == nil {
			<-w.sem
			if err != nil && !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
				w.logger.Error("failed to claim task",
					logger.WorkerID(w.workerID.String()),
					logger.Error(err))
			}
			return
		}

		w.logger.Debug("claimed task",
			logger.WorkerID(w.workerID.String()),
			logger.JobID(task.ID.String()),
			slog.String("task_name", task.TaskName),
			logger.Queue(task.Queue))

		run.wg.Add(1)
		go func(ctx context.Context, task *Task) {
			defer run.wg.Done()
			defer func() { <-w.sem }()

			if err := w.processTask(ctx, task); err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.logger.Error("failed to process task",
					logger.WorkerID(w.workerID.String()),
					logger.JobID(task.ID.String()),
					logger.Error(err))
			}
		}(context.WithoutCancel(ctx), task)
	}
}

// processTask executes a task with its handler. ctx is detached from the
// worker lifecycle so a graceful stop lets the task finish.
func (w *Worker) processTask(parent context.Context, task *Task) (retErr error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(WithTaskID(parent, task.ID), w.lockTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			w.logger.ErrorContext(ctx, "handler panicked",
				logger.WorkerID(w.workerID.String()),
				slog.String("task_name", task.TaskName),
				slog.Any("panic", r))
			_ = w.handleTaskFailure(ctx, task, retErr, time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()

	if !ok {
		return w.handleMissingHandler(ctx, task)
	}

	result, err := handler.Handle(ctx, task.Payload)
	duration := time.Since(start)

	if err != nil {
		return w.handleTaskFailure(ctx, task, err, duration)
	}

	return w.handleTaskSuccess(ctx, task, result, duration)
}

// handleMissingHandler sends the task straight to the DLQ; retries cannot
// succeed until a handler is deployed.
func (w *Worker) handleMissingHandler(ctx context.Context, task *Task) error {
	w.logger.ErrorContext(ctx, "no handler registered for task type",
		logger.WorkerID(w.workerID.String()),
		slog.String("task_name", task.TaskName))

	errorMsg := "no handler registered for task type: " + task.TaskName
	if err := w.repo.FailTask(ctx, task.ID, errorMsg); err != nil {
		return fmt.Errorf("failed to mark task %s as failed: %w", task.ID, err)
	}

	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("failed to move task %s to DLQ: %w", task.ID, err)
	}

	return ErrHandlerNotFound
}

// handleTaskFailure records the error. The storage either reschedules the
// task or marks it failed; the claimed copy tells whether this was the last
// attempt, in which case it goes to the DLQ.
func (w *Worker) handleTaskFailure(ctx context.Context, task *Task, execErr error, duration time.Duration) error {
	w.logger.ErrorContext(ctx, "task failed",
		logger.WorkerID(w.workerID.String()),
		slog.String("task_name", task.TaskName),
		logger.RetryCount(int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(duration),
		logger.Error(execErr))

	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		return fmt.Errorf("failed to update task %s status to failed: %w", task.ID, err)
	}

	if task.RetryCount >= task.MaxRetries {
		if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
			return fmt.Errorf("failed to move task %s to DLQ after max retries: %w", task.ID, err)
		}

		w.logger.WarnContext(ctx, "task moved to dead letter queue",
			logger.WorkerID(w.workerID.String()),
			slog.String("task_name", task.TaskName))
	}

	return nil
}

func (w *Worker) handleTaskSuccess(ctx context.Context, task *Task, result json.RawMessage, duration time.Duration) error {
	if err := w.repo.CompleteTask(ctx, task.ID, result); err != nil {
		return fmt.Errorf("failed to mark task %s as completed: %w", task.ID, err)
	}

	w.logger.InfoContext(ctx, "task completed successfully",
		logger.WorkerID(w.workerID.String()),
		slog.String("task_name", task.TaskName),
		logger.Queue(task.Queue),
		logger.Duration(duration))

	return nil
}
