package pushapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/push"
)

// Dispatcher sends notifications and runs the batch operators.
type Dispatcher interface {
	Send(ctx context.Context, req push.Request, overrides push.SendOptions) (*push.Notification, error)
	Resend(ctx context.Context, filter push.Filter) ([]*push.Notification, error)
	Unsent(ctx context.Context, filter push.Filter) ([]*push.Notification, error)
	Sent(ctx context.Context, filter push.Filter) ([]*push.Notification, error)
}

// Publisher defers notifications to the work queue.
type Publisher interface {
	Queue(ctx context.Context, req push.Request, overrides push.SendOptions) (*push.Notification, error)
	Requeue(ctx context.Context, filter push.Filter) ([]*push.Notification, error)
}

// SendRequest is the body of the send and queue endpoints.
type SendRequest struct {
	push.Request

	// SendOptions override the stored options for this call only.
	SendOptions push.SendOptions `json:"sendOptions,omitempty"`
}

// API is the admin HTTP surface over a dispatcher, its storage and an
// optional publisher.
type API struct {
	dispatcher Dispatcher
	publisher  Publisher
	store      push.Storage
	checks     []func(context.Context) error
	logger     *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithPublisher enables the queue and requeue endpoints.
func WithPublisher(p Publisher) Option {
	return func(a *API) {
		a.publisher = p
	}
}

// WithHealthChecks adds readiness checks to the health endpoint.
func WithHealthChecks(checks ...func(context.Context) error) Option {
	return func(a *API) {
		a.checks = append(a.checks, checks...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates the API.
func New(d Dispatcher, store push.Storage, opts ...Option) (*API, error) {
	if d == nil {
		return nil, ErrNoDispatcher
	}
	if store == nil {
		return nil, ErrNoStorage
	}

	a := &API{
		dispatcher: d,
		store:      store,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Router returns the routes:
//
//	GET  /health
//	GET  /notifications?status=sent|unsent|all&to=&limit=&createdAfter=&createdBefore=&extra.<field>=
//	POST /notifications
//	POST /notifications/queue
//	POST /notifications/resend
//	POST /notifications/requeue
//	GET  /notifications/{id}
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID, middleware.Recoverer, accessLog(a.logger))

	r.Get("/health", httpserver.HealthCheckHandler(a.logger, a.checks...))

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", a.list)
		r.Post("/", a.send)
		r.Post("/queue", a.queue)
		r.Post("/resend", a.resend)
		r.Post("/requeue", a.requeue)
		r.Get("/{id}", a.get)
	})

	return r
}

func (a *API) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}

	n, err := a.dispatcher.Send(r.Context(), req.Request, req.SendOptions)
	a.writeResult(w, r, http.StatusCreated, dataOrNil(n), nil, err)
}

func (a *API) queue(w http.ResponseWriter, r *http.Request) {
	if a.publisher == nil {
		a.writeResult(w, r, 0, nil, nil, push.ErrNoQueue)
		return
	}

	var req SendRequest
	if err := decodeJSON(r, &req, false); err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}

	n, err := a.publisher.Queue(r.Context(), req.Request, req.SendOptions)
	a.writeResult(w, r, http.StatusAccepted, dataOrNil(n), nil, err)
}

func (a *API) resend(w http.ResponseWriter, r *http.Request) {
	var filter push.Filter
	if err := decodeJSON(r, &filter, true); err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}

	records, err := a.dispatcher.Resend(r.Context(), filter)
	a.writeResult(w, r, http.StatusOK, listOrNil(records), &Meta{Count: len(records)}, err)
}

func (a *API) requeue(w http.ResponseWriter, r *http.Request) {
	if a.publisher == nil {
		a.writeResult(w, r, 0, nil, nil, push.ErrNoQueue)
		return
	}

	var filter push.Filter
	if err := decodeJSON(r, &filter, true); err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}

	records, err := a.publisher.Requeue(r.Context(), filter)
	a.writeResult(w, r, http.StatusAccepted, listOrNil(records), &Meta{Count: len(records)}, err)
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}

	var records []*push.Notification
	switch q.status {
	case "sent":
		records, err = a.dispatcher.Sent(r.Context(), q.filter)
	case "unsent":
		records, err = a.dispatcher.Unsent(r.Context(), q.filter)
	default:
		records, err = a.store.Find(r.Context(), q.filter)
	}
	if err != nil {
		a.writeResult(w, r, 0, nil, nil, err)
		return
	}
	a.writeResult(w, r, http.StatusOK, records, &Meta{Count: len(records)}, nil)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.Get(r.Context(), chi.URLParam(r, "id"))
	a.writeResult(w, r, http.StatusOK, dataOrNil(n), nil, err)
}

// dataOrNil keeps a nil record out of the envelope's data field.
func dataOrNil(n *push.Notification) any {
	if n == nil {
		return nil
	}
	return n
}

func listOrNil(records []*push.Notification) any {
	if records == nil {
		return nil
	}
	return records
}
