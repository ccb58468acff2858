package push

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// EventKind names a publisher lifecycle event.
type EventKind string

const (
	// EventQueued is emitted once a notification has been handed to the work queue.
	EventQueued EventKind = "queued"
	// EventQueueError is emitted when creating or publishing fails.
	EventQueueError EventKind = "queue-error"
)

// Event reports the outcome of a Queue or Requeue operation.
// Notification is a snapshot and is nil when creation failed.
type Event struct {
	Kind         EventKind
	Notification *Notification
	JobID        uuid.UUID
	Err          error
}

// Subscribe returns a subscriber that receives publisher events until ctx is
// done or it is closed. Emission never waits for a slow subscriber.
func (p *Publisher) Subscribe(ctx context.Context) broadcast.Subscriber[Event] {
	return p.events.Subscribe(ctx)
}

func (p *Publisher) emit(ctx context.Context, ev Event) {
	ev.Notification = ev.Notification.Clone()
	if err := p.events.Broadcast(ctx, broadcast.Message[Event]{Data: ev}); err != nil {
		p.logger.DebugContext(ctx, "event dropped", logger.Event(string(ev.Kind)), logger.Error(err))
	}
}
