package push

import (
	"context"
	"time"
)

// Filter selects notifications. Zero fields match everything; set fields are
// combined with AND.
type Filter struct {
	IDs           []string       `json:"ids,omitempty"`
	To            []string       `json:"to,omitempty"`
	CreatedAfter  time.Time      `json:"createdAfter,omitzero"`
	CreatedBefore time.Time      `json:"createdBefore,omitzero"`
	Extra         map[string]any `json:"extra,omitempty"`
	Limit         int            `json:"limit,omitempty"`

	// Sent restricts by delivery state. Unsent and Sent always overwrite it.
	Sent *bool `json:"-"`
}

// Storage persists notifications.
type Storage interface {
	// Create stores a new notification and sets its bookkeeping timestamps.
	Create(ctx context.Context, n *Notification) error
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*Notification, error)
	// Find returns matching notifications ordered by creation time.
	Find(ctx context.Context, filter Filter) ([]*Notification, error)
	// Save replaces a stored notification and refreshes UpdatedAt.
	Save(ctx context.Context, n *Notification) error
}
