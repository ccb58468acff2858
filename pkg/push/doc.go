// Package push dispatches push notifications and keeps a durable record of
// every attempt.
//
// A Dispatcher turns a Request into a persisted Notification and performs send
// attempts through a Transport. In ModeSimulated, or when the "fake" send
// option is set, a notification is marked sent without contacting the
// gateway. Transport failures are classified into ErrServerUnavailable,
// ErrUnauthorized and ErrInvalidRequest and stored on the notification
// response; SentAt is only set when the response carries the success marker.
//
// A Publisher persists notifications and enqueues a Job for each on a work
// queue, reporting EventQueued and EventQueueError to subscribers. A Worker
// consumes those jobs, resolves the notification and dispatches it.
//
// Batch operations live on the Dispatcher (Unsent, Sent, Resend) and the
// Publisher (Requeue).
//
//	store := push.NewMemoryStorage()
//	d, _ := push.NewDispatcher(store, push.WithMode(push.ModeSimulated))
//	n, err := d.Send(ctx, push.Request{To: push.Recipients{"token"}}, nil)
package push
