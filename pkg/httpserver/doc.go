// Package httpserver runs an http.Handler with graceful shutdown and serves
// health probes.
//
// Run blocks until its context is done, then drains in-flight requests
// within the shutdown timeout. Signal handling is left to the caller, which
// usually derives the context from signal.NotifyContext:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// HealthCheckHandler answers "ALIVE" without checks and "READY" or
// "NOT_READY" when dependency checks are given.
package httpserver
