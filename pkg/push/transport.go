package push

import "context"

// Message is the transport payload built from a notification: its data, its
// user visible fields and its message level options.
type Message struct {
	Data         map[string]any
	Notification map[string]any
	Options      SendOptions
}

// Transport delivers a message to one or many recipients. A single recipient
// is addressed directly, several recipients as a multicast.
//
// A non-200 gateway answer must be returned as *StatusError. The response is
// an opaque mapping and may carry a "results" list aligned with to.
type Transport interface {
	Send(ctx context.Context, msg Message, to []string, opts SendOptions) (map[string]any, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg Message, to []string, opts SendOptions) (map[string]any, error)

func (f TransportFunc) Send(ctx context.Context, msg Message, to []string, opts SendOptions) (map[string]any, error) {
	return f(ctx, msg, to, opts)
}
