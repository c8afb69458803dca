package repository

import (
	"context"
	"errors"

	"case_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository 訊息存取, every write is field scoped
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	Insert(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	// ListByRoom ordered by created_at ascending
	ListByRoom(ctx context.Context, roomID string, includeDeleted bool) ([]*domain.Message, error)
	// LastCreatedAt 0 when the room has no message
	LastCreatedAt(ctx context.Context, roomID string) (int64, error)
	// ListUnreadFor messages in roomID not sent by readerID and still unread
	ListUnreadFor(ctx context.Context, roomID, readerID string) ([]*domain.Message, error)
	// MarkRead flips is_read once, reports whether this call flipped it
	MarkRead(ctx context.Context, messageID string, at int64) (bool, error)
	CountSentBy(ctx context.Context, senderID string) (int64, error)
	CountUnreadFor(ctx context.Context, roomIDs []string, readerID string) (int64, error)
}

type chatMessageRepository struct {
	coll *mongo.Collection
}

// NewMongoMessageRepository create mongo backed MessageRepository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll: db.Collection("chat_messages"),
	}
}

func (r *chatMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "is_read", Value: 1}, {Key: "sender_id", Value: 1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}}},
	})
	return err
}

func (r *chatMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	_, err := r.coll.InsertOne(ctx, msg)
	return err
}

func (r *chatMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *chatMessageRepository) ListByRoom(ctx context.Context, roomID string, includeDeleted bool) ([]*domain.Message, error) {
	filter := bson.M{"room_id": roomID}
	if !includeDeleted {
		filter["is_deleted"] = false
	}
	return r.find(ctx, filter)
}

func (r *chatMessageRepository) ListUnreadFor(ctx context.Context, roomID, readerID string) ([]*domain.Message, error) {
	return r.find(ctx, bson.M{
		"room_id":    roomID,
		"is_read":    false,
		"is_deleted": false,
		"sender_id":  bson.M{"$ne": readerID},
	})
}

func (r *chatMessageRepository) find(ctx context.Context, filter bson.M) ([]*domain.Message, error) {
	// _id as tie breaker keeps replay stable
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := []*domain.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepository) LastCreatedAt(ctx context.Context, roomID string) (int64, error) {
	var last struct {
		CreatedAt int64 `bson:"created_at"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"created_at": 1})
	err := r.coll.FindOne(ctx, bson.M{"room_id": roomID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return last.CreatedAt, nil
}

func (r *chatMessageRepository) MarkRead(ctx context.Context, messageID string, at int64) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": messageID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *chatMessageRepository) CountSentBy(ctx context.Context, senderID string) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"sender_id": senderID, "is_deleted": false})
}

func (r *chatMessageRepository) CountUnreadFor(ctx context.Context, roomIDs []string, readerID string) (int64, error) {
	if len(roomIDs) == 0 {
		return 0, nil
	}
	return r.coll.CountDocuments(ctx, bson.M{
		"room_id":    bson.M{"$in": roomIDs},
		"is_read":    false,
		"is_deleted": false,
		"sender_id":  bson.M{"$ne": readerID},
	})
}
