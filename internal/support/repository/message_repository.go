package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
)

// MessageRepository append-only message store. Ids are time-ordered
// strings, so every range/count query is an _id comparison.
type MessageRepository interface {
	Insert(ctx context.Context, msg *domain.Message) error
	ListRecent(ctx context.Context, roomCode string, limit int64) ([]domain.Message, error)
	ListAfter(ctx context.Context, roomCode, afterID string, limit int64) ([]domain.Message, error)
	// CountBySenderTypes unread backbone: matching sender types past the
	// cursor; an empty afterID counts everything.
	CountBySenderTypes(ctx context.Context, roomCode string, types []domain.ParticipantType, afterID string) (int64, error)
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create a MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("support_messages"),
	}
}

func (r *messageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *messageRepository) ListRecent(ctx context.Context, roomCode string, limit int64) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.M{"_id": -1}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"room_code": roomCode}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	// newest-first from the index, flip to reading order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepository) ListAfter(ctx context.Context, roomCode, afterID string, limit int64) ([]domain.Message, error) {
	filter := bson.M{"room_code": roomCode}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	opts := options.Find().SetSort(bson.M{"_id": 1}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var msgs []domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) CountBySenderTypes(ctx context.Context, roomCode string, types []domain.ParticipantType, afterID string) (int64, error) {
	if len(types) == 0 {
		return 0, errors.New("empty sender type filter")
	}
	filter := bson.M{
		"room_code":   roomCode,
		"sender_type": bson.M{"$in": types},
	}
	if afterID != "" {
		filter["_id"] = bson.M{"$gt": afterID}
	}
	return r.coll.CountDocuments(ctx, filter)
}
