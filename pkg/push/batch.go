package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/pushkit/pkg/async"
	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Unsent returns the notifications matching filter that were never delivered.
// The delivery predicate always applies, whatever filter.Sent holds.
func (d *Dispatcher) Unsent(ctx context.Context, filter Filter) ([]*Notification, error) {
	sent := false
	filter.Sent = &sent
	return d.find(ctx, filter)
}

// Sent returns the delivered notifications matching filter.
func (d *Dispatcher) Sent(ctx context.Context, filter Filter) ([]*Notification, error) {
	sent := true
	filter.Sent = &sent
	return d.find(ctx, filter)
}

// Resend dispatches every unsent notification matching filter in parallel.
//
// It waits for all attempts. The returned slice holds every updated
// notification in filter order; the error joins the failed attempts, each
// prefixed with its notification id.
func (d *Dispatcher) Resend(ctx context.Context, filter Filter) ([]*Notification, error) {
	unsent, err := d.Unsent(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(unsent) == 0 {
		return unsent, nil
	}

	futures := make([]*async.Future[*Notification], len(unsent))
	for i, n := range unsent {
		futures[i] = async.Async(ctx, n, func(ctx context.Context, n *Notification) (*Notification, error) {
			out, err := d.Dispatch(ctx, n, nil)
			if err != nil {
				return out, fmt.Errorf("notification %s: %w", n.ID, err)
			}
			return out, nil
		})
	}

	outcomes, err := async.Settle(futures...)

	records := make([]*Notification, 0, len(outcomes))
	for i, o := range outcomes {
		if o.Value == nil {
			records = append(records, unsent[i])
			continue
		}
		records = append(records, o.Value)
	}

	d.logger.InfoContext(ctx, "resend finished",
		slog.Int("notifications", len(records)),
		logger.Error(err))

	return records, err
}

func (d *Dispatcher) find(ctx context.Context, filter Filter) ([]*Notification, error) {
	records, err := d.store.Find(ctx, filter)
	if err != nil {
		return nil, errors.Join(ErrPersistence, fmt.Errorf("find notifications: %w", err))
	}
	return records, nil
}
