package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// DefaultCollection is the collection notification records live in.
const DefaultCollection = "push_notifications"

// NotificationStorage is a push.Storage backed by a MongoDB collection.
type NotificationStorage struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ push.Storage = (*NotificationStorage)(nil)

// StorageOption configures a NotificationStorage.
type StorageOption func(*NotificationStorage)

// WithClock overrides the clock used for createdAt and updatedAt.
func WithClock(now func() time.Time) StorageOption {
	return func(s *NotificationStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewNotificationStorage stores records in db.collection, DefaultCollection
// when collection is empty.
func NewNotificationStorage(db *mongo.Database, collection string, opts ...StorageOption) *NotificationStorage {
	if collection == "" {
		collection = DefaultCollection
	}
	s := &NotificationStorage{
		coll: db.Collection(collection),
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the indexes the batch and lookup queries rely on.
func (s *NotificationStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "to", Value: 1}}},
		{Keys: bson.D{{Key: "sentAt", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create notification indexes: %w", err)
	}
	return nil
}

func (s *NotificationStorage) Create(ctx context.Context, n *push.Notification) error {
	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateNotification, n.ID)
		}
		return fmt.Errorf("mongo: insert notification: %w", err)
	}
	return nil
}

func (s *NotificationStorage) Get(ctx context.Context, id string) (*push.Notification, error) {
	var n push.Notification
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", push.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find notification %s: %w", id, err)
	}
	normalize(&n)
	return &n, nil
}

func (s *NotificationStorage) Find(ctx context.Context, filter push.Filter) ([]*push.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := s.coll.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find notifications: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]*push.Notification, 0)
	for cur.Next(ctx) {
		var n push.Notification
		if err := cur.Decode(&n); err != nil {
			return nil, fmt.Errorf("mongo: decode notification: %w", err)
		}
		normalize(&n)
		out = append(out, &n)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterate notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationStorage) Save(ctx context.Context, n *push.Notification) error {
	n.UpdatedAt = s.now()

	res, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: n.ID}}, n)
	if err != nil {
		return fmt.Errorf("mongo: save notification %s: %w", n.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", push.ErrNotFound, n.ID)
	}
	return nil
}

// buildFilter renders f as a query document.
func buildFilter(f push.Filter) bson.D {
	q := bson.D{}

	if f.Sent != nil {
		if *f.Sent {
			q = append(q, bson.E{Key: "sentAt", Value: bson.D{{Key: "$ne", Value: nil}}})
		} else {
			q = append(q, bson.E{Key: "sentAt", Value: nil})
		}
	}
	if len(f.IDs) > 0 {
		q = append(q, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: f.IDs}}})
	}
	if len(f.To) > 0 {
		q = append(q, bson.E{Key: "to", Value: bson.D{{Key: "$in", Value: f.To}}})
	}

	created := bson.D{}
	if !f.CreatedAfter.IsZero() {
		created = append(created, bson.E{Key: "$gt", Value: f.CreatedAfter})
	}
	if !f.CreatedBefore.IsZero() {
		created = append(created, bson.E{Key: "$lt", Value: f.CreatedBefore})
	}
	if len(created) > 0 {
		q = append(q, bson.E{Key: "createdAt", Value: created})
	}

	for _, k := range sortedKeys(f.Extra) {
		q = append(q, bson.E{Key: "extra." + k, Value: f.Extra[k]})
	}
	return q
}
