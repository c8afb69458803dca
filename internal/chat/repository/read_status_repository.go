package repository

import (
	"context"

	"case_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReadStatusRepository 已讀回條
type ReadStatusRepository interface {
	EnsureIndexes(ctx context.Context) error
	// Insert reports false without error when the (message, reader) receipt already exists
	Insert(ctx context.Context, status *domain.MessageReadStatus) (bool, error)
	Exists(ctx context.Context, messageID, readerID string) (bool, error)
}

type readStatusRepository struct {
	coll *mongo.Collection
}

// NewMongoReadStatusRepository create mongo backed ReadStatusRepository
func NewMongoReadStatusRepository(db *mongo.Database) ReadStatusRepository {
	return &readStatusRepository{coll: db.Collection("message_read_statuses")}
}

func (r *readStatusRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "reader_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_message_reader"),
	})
	return err
}

func (r *readStatusRepository) Insert(ctx context.Context, status *domain.MessageReadStatus) (bool, error) {
	_, err := r.coll.InsertOne(ctx, status)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *readStatusRepository) Exists(ctx context.Context, messageID, readerID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"message_id": messageID, "reader_id": readerID})
	return n > 0, err
}
