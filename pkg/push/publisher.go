package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/queue"
)

// DefaultQueueName keeps push jobs apart from other workloads on the same broker.
const DefaultQueueName = "push:queued"

// JobName is the task name push jobs are enqueued and handled under.
const JobName = "push.notification"

// Job is the work queue payload. It references the notification by id.
type Job struct {
	ID string `json:"_id"`
}

// Enqueuer publishes jobs onto a durable work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Publisher persists notifications and hands them to the work queue.
type Publisher struct {
	dispatcher *Dispatcher
	enqueuer   Enqueuer
	queueName  string
	maxRetries int8
	events     broadcast.Broadcaster[Event]
	logger     *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithEnqueuer binds the durable work queue. Without one, Queue only persists
// and emits events.
func WithEnqueuer(e Enqueuer) PublisherOption {
	return func(p *Publisher) {
		p.enqueuer = e
	}
}

// WithQueueName sets the queue jobs are published on.
func WithQueueName(name string) PublisherOption {
	return func(p *Publisher) {
		if name != "" {
			p.queueName = name
		}
	}
}

// WithJobRetries sets how many times the broker retries a failed job (0-10).
func WithJobRetries(n int8) PublisherOption {
	return func(p *Publisher) {
		if n >= 0 && n <= 10 {
			p.maxRetries = n
		}
	}
}

// WithBroadcaster replaces the in-memory event broadcaster.
func WithBroadcaster(b broadcast.Broadcaster[Event]) PublisherOption {
	return func(p *Publisher) {
		if b != nil {
			p.events = b
		}
	}
}

// WithPublisherLogger sets the logger.
func WithPublisherLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher creates a Publisher on top of d.
func NewPublisher(d *Dispatcher, opts ...PublisherOption) (*Publisher, error) {
	if d == nil {
		return nil, ErrNoDispatcher
	}

	p := &Publisher{
		dispatcher: d,
		queueName:  DefaultQueueName,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.events == nil {
		p.events = broadcast.NewMemoryBroadcaster[Event](64)
	}

	p.logger = p.logger.With(logger.Component("push.publisher"), logger.Queue(p.queueName))
	return p, nil
}

// QueueName returns the queue jobs are published on.
func (p *Publisher) QueueName() string {
	return p.queueName
}

// Queue persists a notification and publishes a job for it.
//
// Creation failures emit EventQueueError and return no notification. Publish
// failures emit EventQueueError and return the persisted notification with an
// error wrapping ErrPublish. Otherwise EventQueued is emitted.
func (p *Publisher) Queue(ctx context.Context, req Request, overrides SendOptions) (*Notification, error) {
	n, err := p.dispatcher.Create(ctx, req, overrides)
	if err != nil {
		p.emit(ctx, Event{Kind: EventQueueError, Err: err})
		return nil, err
	}

	return n, p.enqueue(ctx, n)
}

// Requeue publishes a fresh job for every unsent notification matching filter.
// It never changes the notifications themselves.
//
// A failed lookup emits a single EventQueueError. Per-notification publish
// failures emit their own event and are joined in the returned error.
func (p *Publisher) Requeue(ctx context.Context, filter Filter) ([]*Notification, error) {
	unsent, err := p.dispatcher.Unsent(ctx, filter)
	if err != nil {
		p.emit(ctx, Event{Kind: EventQueueError, Err: err})
		return nil, err
	}

	var errs []error
	for _, n := range unsent {
		if err := p.enqueue(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.InfoContext(ctx, "requeue finished",
		slog.Int("notifications", len(unsent)),
		slog.Int("failed", len(errs)))

	return unsent, errors.Join(errs...)
}

// Close releases the event subscribers.
func (p *Publisher) Close() error {
	return p.events.Close()
}

func (p *Publisher) enqueue(ctx context.Context, n *Notification) error {
	if p.enqueuer == nil {
		p.emit(ctx, Event{Kind: EventQueued, Notification: n})
		return nil
	}

	opts := []queue.EnqueueOption{
		queue.WithQueue(p.queueName),
		queue.WithTaskName(JobName),
		queue.WithMaxRetries(p.maxRetries),
	}
	if strings.EqualFold(n.Options.Priority(), PriorityHigh) {
		opts = append(opts, queue.WithPriority(queue.PriorityHigh))
	}

	jobID, err := p.enqueuer.Enqueue(ctx, Job{ID: n.ID}, opts...)
	if err != nil {
		err = errors.Join(ErrPublish, fmt.Errorf("notification %s: %w", n.ID, err))
		p.logger.ErrorContext(ctx, "failed to publish job",
			logger.NotificationID(n.ID),
			logger.Error(err))
		p.emit(ctx, Event{Kind: EventQueueError, Notification: n, Err: err})
		return err
	}

	p.logger.DebugContext(ctx, "notification queued",
		logger.NotificationID(n.ID),
		logger.JobID(jobID.String()))
	p.emit(ctx, Event{Kind: EventQueued, Notification: n, JobID: jobID})
	return nil
}
