// Package redis connects to Redis and provides the durable work queue
// storage used by the push worker.
//
// Connect retries the initial ping within the configured timeout:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// QueueStorage implements queue.EnqueuerRepository and queue.WorkerRepository.
// Claims are atomic through a Lua script, state changes go through WATCH
// transactions, and exhausted tasks end up in a dead-letter list:
//
//	store, err := redis.NewQueueStorage(client, redis.WithQueueConfig(cfg))
//	if err != nil {
//		return err
//	}
//	g.Go(store.RunLockReaper(ctx))
//
// Tasks whose worker died keep their lock until RunLockReaper, or a direct
// ReleaseExpiredLocks call, returns them to their queue.
//
// Healthcheck returns a probe for the admin API.
package redis
