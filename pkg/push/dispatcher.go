package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Dispatcher creates notifications and performs send attempts.
type Dispatcher struct {
	store     Storage
	transport Transport
	mode      Mode
	defaults  SendOptions
	extra     map[string]any
	logger    *slog.Logger
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTransport sets the gateway client used in live mode.
func WithTransport(t Transport) DispatcherOption {
	return func(d *Dispatcher) {
		d.transport = t
	}
}

// WithMode sets the execution mode. Defaults to ModeSimulated.
func WithMode(m Mode) DispatcherOption {
	return func(d *Dispatcher) {
		if m != "" {
			d.mode = m
		}
	}
}

// WithDefaultOptions sets the global send options, the lowest merge level.
func WithDefaultOptions(opts SendOptions) DispatcherOption {
	return func(d *Dispatcher) {
		d.defaults = maps.Clone(opts)
	}
}

// WithExtraFields sets default values of the extension fields every new
// notification carries.
func WithExtraFields(fields map[string]any) DispatcherOption {
	return func(d *Dispatcher) {
		d.extra = maps.Clone(fields)
	}
}

// WithLogger sets the logger. Built messages and outcomes are logged at debug level.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the time source used for sentAt.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher creates a Dispatcher. Live mode requires a transport.
func NewDispatcher(store Storage, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrNoStorage
	}

	d := &Dispatcher{
		store:  store,
		mode:   ModeSimulated,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.mode == ModeLive && d.transport == nil {
		return nil, ErrNoTransport
	}

	d.logger = d.logger.With(logger.Component("push.dispatcher"))
	return d, nil
}

// Mode returns the configured execution mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Create validates req and persists a new unsent notification. Send options
// merge defaults, then overrides, then the request's own options.
func (d *Dispatcher) Create(ctx context.Context, req Request, overrides SendOptions) (*Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.Join(ErrValidation, err)
	}

	extra := maps.Clone(d.extra)
	if len(req.Extra) > 0 {
		if extra == nil {
			extra = make(map[string]any, len(req.Extra))
		}
		maps.Copy(extra, req.Extra)
	}

	n := &Notification{
		ID:           uuid.NewString(),
		To:           slices.Clone(req.To),
		Data:         maps.Clone(req.Data),
		Notification: maps.Clone(req.Notification),
		Options:      MergeOptions(d.defaults, overrides, req.Options),
		Extra:        extra,
	}

	if err := d.store.Create(ctx, n); err != nil {
		return nil, errors.Join(ErrPersistence, fmt.Errorf("create notification: %w", err))
	}

	d.logger.DebugContext(ctx, "notification created",
		logger.NotificationID(n.ID),
		logger.Recipients(len(n.To)))

	return n, nil
}

// Dispatch performs one send attempt for n and persists the outcome before
// returning. Options merge defaults, then the stored options, then overrides.
//
// The updated notification is returned even when the attempt fails. A
// transport error takes precedence over a persistence error.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification, overrides SendOptions) (*Notification, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil notification", ErrValidation)
	}

	opts := MergeOptions(d.defaults, n.Options, overrides)
	if d.mode == ModeSimulated || opts.Fake() {
		return d.simulate(ctx, n)
	}
	return d.deliver(ctx, n, opts)
}

// Send creates a notification and dispatches it immediately.
func (d *Dispatcher) Send(ctx context.Context, req Request, overrides SendOptions) (*Notification, error) {
	n, err := d.Create(ctx, req, overrides)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, n, nil)
}

func (d *Dispatcher) simulate(ctx context.Context, n *Notification) (*Notification, error) {
	d.markSent(n)
	n.Response = map[string]any{"message": SuccessMessage}

	if err := d.save(ctx, n); err != nil {
		return n, err
	}

	d.logger.DebugContext(ctx, "notification sent",
		logger.NotificationID(n.ID),
		logger.Mode(ModeSimulated.String()),
		logger.Recipients(len(n.To)))

	return n, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification, opts SendOptions) (*Notification, error) {
	if d.transport == nil {
		return n, ErrNoTransport
	}

	msg := Message{
		Data:         maps.Clone(n.Data),
		Notification: maps.Clone(n.Notification),
		Options:      maps.Clone(n.Options),
	}

	d.logger.DebugContext(ctx, "sending notification",
		logger.NotificationID(n.ID),
		logger.Mode(ModeLive.String()),
		logger.Recipients(len(n.To)),
		slog.Any("message", msg))

	start := d.now()
	response, sendErr := d.transport.Send(ctx, msg, slices.Clone(n.To), opts)
	if sendErr != nil {
		sendErr = classify(sendErr)
		response = errorResponse(sendErr)
	} else {
		response = maps.Clone(response)
		if response == nil {
			response = map[string]any{}
		}
		response["message"] = SuccessMessage
	}

	n.Response = response
	if isSuccess(response) {
		d.markSent(n)
		if results, ok := transportResults(response); ok {
			n.Results = zipResults(n.To, results)
		}
	}

	saveErr := d.save(ctx, n)

	attrs := []any{
		logger.NotificationID(n.ID),
		logger.Mode(ModeLive.String()),
		logger.Duration(d.now().Sub(start)),
	}
	if sendErr != nil {
		d.logger.WarnContext(ctx, "notification send failed", append(attrs, logger.Error(sendErr))...)
		return n, sendErr
	}
	if saveErr != nil {
		return n, saveErr
	}

	d.logger.DebugContext(ctx, "notification sent", attrs...)
	return n, nil
}

// markSent stamps sentAt. A notification keeps its first delivery time.
func (d *Dispatcher) markSent(n *Notification) {
	if n.SentAt != nil {
		return
	}
	now := d.now()
	n.SentAt = &now
}

func (d *Dispatcher) save(ctx context.Context, n *Notification) error {
	if err := d.store.Save(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "failed to persist notification",
			logger.NotificationID(n.ID),
			logger.Error(err))
		return errors.Join(ErrPersistence, fmt.Errorf("save notification %s: %w", n.ID, err))
	}
	return nil
}
