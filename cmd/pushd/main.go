// Command pushd serves the push notification admin API and consumes queued
// push jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/pkg/broadcast"
	"github.com/dmitrymomot/pushkit/pkg/config"
	"github.com/dmitrymomot/pushkit/pkg/environment"
	"github.com/dmitrymomot/pushkit/pkg/gcm"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/mongo"
	"github.com/dmitrymomot/pushkit/pkg/push"
	"github.com/dmitrymomot/pushkit/pkg/pushapi"
	"github.com/dmitrymomot/pushkit/pkg/queue"
	"github.com/dmitrymomot/pushkit/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("pushd exited", logger.Error(err))
		os.Exit(1)
	}
}

// taskStore is what the enqueuer and the queue worker share.
type taskStore interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	env := environment.Parse(cfg.Env)
	log := logger.New(
		logger.WithEnvironment(env, cfg.Service),
		logger.WithConfig(cfg.Log),
		logger.WithDebug(cfg.Debug),
		logger.WithContextExtractors(queue.TaskIDExtractor(), pushapi.RequestIDExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongo.New(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.WithoutCancel(ctx)) }()

	store := mongo.NewNotificationStorage(mongoClient.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}

	dispatcher, err := newDispatcher(cfg, env, store, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	checks := []func(context.Context) error{mongo.Healthcheck(mongoClient)}

	var tasks taskStore
	if cfg.Redis.ConnectionURL != "" {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()

		rs, err := redis.NewQueueStorage(client,
			redis.WithQueueConfig(cfg.Redis),
			redis.WithQueueLogger(log),
		)
		if err != nil {
			return err
		}
		g.Go(rs.RunLockReaper(ctx))
		checks = append(checks, redis.Healthcheck(client))
		tasks = rs
	} else {
		log.WarnContext(ctx, "REDIS_URL is empty, queued jobs are kept in memory")
		ms := queue.NewMemoryStorage()
		defer ms.Close()
		tasks = ms
	}

	enqueuer, err := queue.NewEnqueuer(tasks,
		queue.WithDefaultQueue(cfg.Queue.Name),
		queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries),
	)
	if err != nil {
		return err
	}

	publisher, err := push.NewPublisher(dispatcher,
		push.WithEnqueuer(enqueuer),
		push.WithQueueName(cfg.Queue.Name),
		push.WithJobRetries(cfg.Queue.MaxRetries),
		push.WithPublisherLogger(log),
	)
	if err != nil {
		return err
	}
	defer publisher.Close()
	g.Go(logEvents(ctx, publisher.Subscribe(ctx), log))

	runner, err := queue.NewWorker(tasks,
		queue.WithConfig(cfg.Queue),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}

	worker, err := push.NewWorker(runner,
		push.WithWorkerDispatcher(dispatcher),
		push.WithShutdownTimeout(cfg.Queue.ShutdownTimeout),
		push.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	g.Go(worker.Run(ctx))

	api, err := pushapi.New(dispatcher, store,
		pushapi.WithPublisher(publisher),
		pushapi.WithHealthChecks(checks...),
		pushapi.WithLogger(log),
	)
	if err != nil {
		return err
	}

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	g.Go(func() error { return srv.Run(ctx, api.Router()) })

	log.InfoContext(ctx, "pushd started",
		logger.Mode(dispatcher.Mode().String()),
		logger.Queue(publisher.QueueName()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("pushd stopped")
	return nil
}

func newDispatcher(cfg appConfig, env environment.Environment, store push.Storage, log *slog.Logger) (*push.Dispatcher, error) {
	mode := push.ParseMode(cfg.Mode, env)

	opts := []push.DispatcherOption{
		push.WithMode(mode),
		push.WithExtraFields(cfg.extraFields()),
		push.WithLogger(log),
	}
	if cfg.DryRun {
		opts = append(opts, push.WithDefaultOptions(push.SendOptions{push.OptionDryRun: true}))
	}

	if mode == push.ModeLive || cfg.GCM.APIKey != "" {
		sender, err := gcm.NewSender(cfg.GCM.APIKey,
			gcm.WithConfig(cfg.GCM),
			gcm.WithLogger(log),
		)
		if err != nil {
			return nil, fmt.Errorf("gcm sender: %w", err)
		}
		opts = append(opts, push.WithTransport(sender))
	}

	return push.NewDispatcher(store, opts...)
}

// logEvents records publisher events until ctx is done.
func logEvents(ctx context.Context, sub broadcast.Subscriber[push.Event], log *slog.Logger) func() error {
	return func() error {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-sub.Receive():
				if !ok {
					return nil
				}
				ev := msg.Data
				attrs := []any{logger.Event(string(ev.Kind))}
				if ev.Notification != nil {
					attrs = append(attrs, logger.NotificationID(ev.Notification.ID))
				}
				if ev.JobID != uuid.Nil {
					attrs = append(attrs, logger.JobID(ev.JobID))
				}
				if ev.Err != nil {
					log.ErrorContext(ctx, "push event", append(attrs, logger.Error(ev.Err))...)
					continue
				}
				log.DebugContext(ctx, "push event", attrs...)
			}
		}
	}
}
