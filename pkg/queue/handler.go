package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

type (
	// Handler processes the payload of one task name.
	// The returned value is stored as the task result.
	Handler interface {
		Name() string
		Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	}

	TaskHandlerFunc[T any] func(ctx context.Context, payload T) (any, error)
)

// NewTaskHandler builds a handler named after the payload type.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return NewNamedTaskHandler(qualifiedStructName(payload), handler)
}

// NewNamedTaskHandler builds a handler for tasks enqueued with WithTaskName.
func NewNamedTaskHandler[T any](name string, handler TaskHandlerFunc[T]) Handler {
	return &taskHandler[T]{
		name:    name,
		handler: handler,
	}
}

type taskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string {
	return h.name
}

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, err
	}

	result, err := h.handler(ctx, t)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultMarshal, err)
	}
	return raw, nil
}
