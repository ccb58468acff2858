// Package mongo connects to MongoDB and stores push notification records.
//
// New retries the initial connect and ping, and Healthcheck returns a probe
// for the admin API. NotificationStorage implements push.Storage on one
// collection (PUSH_MODEL_NAME, push_notifications by default):
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "")
//	if err != nil {
//		return err
//	}
//	store := mongo.NewNotificationStorage(db, cfg.Collection)
//	if err := store.EnsureIndexes(ctx); err != nil {
//		return err
//	}
//
// Unsent records are those whose sentAt is null. Find orders by creation
// time. Nested documents are decoded into plain maps and slices.
package mongo
