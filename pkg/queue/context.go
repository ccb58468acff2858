package queue

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

type taskIDKey struct{}

// WithTaskID stores the id of the task being processed in ctx.
func WithTaskID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// TaskIDFromContext returns the id stored by WithTaskID.
func TaskIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(taskIDKey{}).(uuid.UUID)
	return id, ok
}

// TaskIDExtractor adds the current task id to every log record of a handler.
func TaskIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := TaskIDFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.JobID(id.String()), true
	}
}
