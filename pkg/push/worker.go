package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/statemachine"
)

// JobRunner is the broker side loop that claims jobs and calls handlers.
// *queue.Worker implements it.
type JobRunner interface {
	RegisterHandler(h queue.Handler) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Job lifecycle states.
const (
	JobReceived    = statemachine.StringState("received")
	JobResolving   = statemachine.StringState("resolving")
	JobDispatching = statemachine.StringState("dispatching")
	JobReporting   = statemachine.StringState("reporting")
	JobCompleted   = statemachine.StringState("completed")
	JobFailed      = statemachine.StringState("failed")
)

const (
	jobResolve  = statemachine.StringEvent("resolve")
	jobSkip     = statemachine.StringEvent("skip")
	jobDispatch = statemachine.StringEvent("dispatch")
	jobReport   = statemachine.StringEvent("report")
	jobComplete = statemachine.StringEvent("complete")
	jobFail     = statemachine.StringEvent("fail")
)

var jobTransitions = []statemachine.Transition{
	{From: JobReceived, To: JobResolving, Event: jobResolve},
	{From: JobResolving, To: JobCompleted, Event: jobSkip},
	{From: JobResolving, To: JobFailed, Event: jobFail},
	{From: JobResolving, To: JobDispatching, Event: jobDispatch},
	{From: JobDispatching, To: JobReporting, Event: jobReport},
	{From: JobReporting, To: JobCompleted, Event: jobComplete},
	{From: JobReporting, To: JobFailed, Event: jobFail},
}

// Worker consumes push jobs: it resolves the notification, dispatches it and
// reports the response as the job result.
type Worker struct {
	runner          JobRunner
	dispatcher      *Dispatcher
	store           Storage
	shutdownTimeout time.Duration
	logger          *slog.Logger
	lifecycle       *statemachine.Definition

	mu         sync.Mutex
	registered bool
	started    bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerDispatcher sets the dispatcher used for send attempts.
func WithWorkerDispatcher(d *Dispatcher) WorkerOption {
	return func(w *Worker) {
		w.dispatcher = d
	}
}

// WithWorkerStorage sets the storage jobs are resolved from. Defaults to the
// dispatcher's storage.
func WithWorkerStorage(s Storage) WorkerOption {
	return func(w *Worker) {
		w.store = s
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight jobs.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.shutdownTimeout = d
		}
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a Worker driven by runner.
func NewWorker(runner JobRunner, opts ...WorkerOption) (*Worker, error) {
	if runner == nil {
		return nil, ErrNoQueue
	}

	w := &Worker{
		runner:          runner,
		shutdownTimeout: 5 * time.Second,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.store == nil && w.dispatcher != nil {
		w.store = w.dispatcher.store
	}

	w.logger = w.logger.With(logger.Component("push.worker"))
	w.lifecycle = statemachine.MustDefinition(JobReceived, jobTransitions, w.logTransition)
	return w, nil
}

// Start registers the job handler and starts the runner. Starting a running
// worker is a no-op.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return nil
	}
	if w.store == nil {
		return ErrNoStorage
	}
	if w.dispatcher == nil {
		return ErrNoDispatcher
	}

	if !w.registered {
		if err := w.runner.RegisterHandler(queue.NewNamedTaskHandler(JobName, w.Handle)); err != nil {
			return fmt.Errorf("register push job handler: %w", err)
		}
		w.registered = true
	}

	if err := w.runner.Start(ctx); err != nil && !errors.Is(err, queue.ErrWorkerAlreadyStarted) {
		return fmt.Errorf("start push worker: %w", err)
	}

	w.started = true
	w.logger.InfoContext(ctx, "push worker started", logger.Mode(w.dispatcher.Mode().String()))
	return nil
}

// Stop stops claiming jobs and waits for in-flight ones up to the shutdown
// timeout. Stopping an idle worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return nil
	}
	w.started = false

	ctx, cancel := context.WithTimeout(ctx, w.shutdownTimeout)
	defer cancel()

	if err := w.runner.Stop(ctx); err != nil && !errors.Is(err, queue.ErrWorkerNotStarted) {
		return err
	}

	w.logger.InfoContext(ctx, "push worker stopped")
	return nil
}

// Run starts the worker and stops it once ctx is done. It suits errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop(context.WithoutCancel(ctx))
	}
}

// Handle processes one job. A job without an id completes without doing
// anything; an unknown id fails with ErrNotFound.
func (w *Worker) Handle(ctx context.Context, job Job) (any, error) {
	m := w.lifecycle.New()
	w.fire(ctx, m, jobResolve)

	if job.ID == "" {
		w.fire(ctx, m, jobSkip)
		return nil, nil
	}

	n, err := w.store.Get(ctx, job.ID)
	if err != nil {
		w.fire(ctx, m, jobFail)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, job.ID)
		}
		return nil, errors.Join(ErrPersistence, err)
	}

	w.fire(ctx, m, jobDispatch)
	out, err := w.dispatcher.Dispatch(ctx, n, nil)
	w.fire(ctx, m, jobReport)
	if err != nil {
		w.fire(ctx, m, jobFail)
		return nil, err
	}

	w.fire(ctx, m, jobComplete)
	return out.Response, nil
}

// fire advances the job machine. The table covers every path Handle takes, so
// an error here is a programming error worth logging, not failing the job.
func (w *Worker) fire(ctx context.Context, m *statemachine.Machine, ev statemachine.Event) {
	if err := m.Fire(ctx, ev); err != nil {
		w.logger.ErrorContext(ctx, "invalid job transition", logger.Event(ev.Name()), logger.Error(err))
	}
}

func (w *Worker) logTransition(ctx context.Context, from, to statemachine.State, ev statemachine.Event) error {
	w.logger.DebugContext(ctx, "job transition",
		slog.String("from", from.Name()),
		slog.String("to", to.Name()),
		logger.Event(ev.Name()))
	return nil
}
