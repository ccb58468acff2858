// Package logger is a thin factory around log/slog.
//
// New builds a *slog.Logger from functional options (format, level, output,
// static attributes) and wraps the handler with LogHandlerDecorator, which
// runs the registered ContextExtractor callbacks on every record. The push
// worker relies on this to stamp job ids onto everything logged while a job
// runs.
//
// Attribute helpers in attr.go keep key names consistent across packages.
//
// # Usage
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "pushd"),
//		logger.WithDebug(cfg.Debug),
//		logger.WithContextExtractors(queue.TaskIDExtractor()),
//	)
//	log.Info("worker started", logger.Queue("push:queued"))
package logger
