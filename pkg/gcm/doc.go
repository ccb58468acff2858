// Package gcm is a push.Transport for the legacy GCM/FCM HTTP endpoint.
//
// A Sender posts one JSON message per call, addressing a single token with
// "to" and up to push.MaxRecipients tokens with "registration_ids". Message
// options such as collapseKey or timeToLive are renamed to their wire form.
//
//	sender, err := gcm.NewSender(cfg.APIKey, gcm.WithConfig(cfg), gcm.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	dispatcher, err := push.NewDispatcher(store,
//		push.WithMode(push.ModeLive),
//		push.WithTransport(sender),
//	)
//
// Server errors and network failures are retried with exponential backoff
// using the "retries" and "backoff" send options. Other non-200 answers come
// back as *push.StatusError so the dispatcher can classify them. An optional
// CircuitBreaker stops calling a gateway that keeps failing.
package gcm
