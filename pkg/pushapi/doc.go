// Package pushapi is the admin HTTP API of the push service.
//
// It exposes direct sends, queued sends, the resend and requeue batch
// operators and record lookups as JSON endpoints on a chi router:
//
//	api, err := pushapi.New(dispatcher, store,
//		pushapi.WithPublisher(publisher),
//		pushapi.WithHealthChecks(mongo.Healthcheck(client)),
//		pushapi.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	srv.Run(ctx, api.Router())
//
// Every response is an Envelope. Validation and malformed input answer 400,
// unknown records 404, classified gateway failures 502 and anything else 500.
// A failed send still carries the persisted notification in data.
package pushapi
