package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tunehub/backend/internal/domain"
)

const (
	notificationsCollection = "notifications"
	messagesCollection      = "messages"
)

// MongoRepository keeps the append-mostly document collections: notifications
// and thread-addressed messages.
type MongoRepository struct {
	notifications *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		notifications: db.Collection(notificationsCollection),
		messages:      db.Collection(messagesCollection),
	}
}

// EnsureIndexes creates the indexes both collections are queried by.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "read", Value: 1}}},
		{Keys: bson.D{{Key: "read", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create notification indexes: %w", err)
	}

	_, err = r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "threadId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "from", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.notifications.Database().Client().Ping(ctx, nil)
}

func (r *MongoRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if _, err := r.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

// ListNotifications returns the newest notifications of recipient first.
func (r *MongoRepository) ListNotifications(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.notifications.Find(ctx, bson.M{"user": recipient}, opts)
	if err != nil {
		return nil, fmt.Errorf("find notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := make([]*domain.Notification, 0)
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return notifications, nil
}

func (r *MongoRepository) CountUnreadNotifications(ctx context.Context, recipient string) (int64, error) {
	return r.notifications.CountDocuments(ctx, bson.M{"user": recipient, "read": false})
}

func (r *MongoRepository) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := r.notifications.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead touches only the recipient's unread documents.
func (r *MongoRepository) MarkAllNotificationsRead(ctx context.Context, recipient string) (int64, error) {
	result, err := r.notifications.UpdateMany(ctx,
		bson.M{"user": recipient, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *MongoRepository) DeleteNotification(ctx context.Context, id string) error {
	result, err := r.notifications.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoRepository) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.notifications.DeleteMany(ctx, bson.M{
		"read":      true,
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return result.DeletedCount, nil
}

func (r *MongoRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	if _, err := r.messages.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListThread returns every message of threadID, oldest first.
func (r *MongoRepository) ListThread(ctx context.Context, threadID string) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	cursor, err := r.messages.Find(ctx, bson.M{"threadId": threadID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*domain.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// Inbox returns the latest message of every thread user takes part in,
// newest thread first.
func (r *MongoRepository) Inbox(ctx context.Context, user string) ([]*domain.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "from", Value: user}},
			bson.D{{Key: "to", Value: user}},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$threadId"},
			{Key: "latest", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$latest"}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}

	cursor, err := r.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate inbox: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*domain.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("decode inbox: %w", err)
	}
	return messages, nil
}
