// Package broadcast provides type-safe, in-process fan-out of messages to
// any number of subscribers.
//
// Broadcast never blocks the sender: every subscriber owns a buffered channel
// and a message that does not fit is dropped for that subscriber only and
// counted in Dropped. Subscriptions end when their context is done, when
// Close is called on them, or when the broadcaster itself is closed.
//
// Basic usage:
//
//	b := broadcast.NewMemoryBroadcaster[string](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//
//	for msg := range sub.Receive() {
//		fmt.Println(msg.Data)
//	}
package broadcast
