package repository

import (
	"context"
	"errors"
	"fmt"

	"case_chat_service/internal/chat/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoomRepository 聊天室存取
type RoomRepository interface {
	EnsureIndexes(ctx context.Context) error
	// CreateRoom returns domain.ErrAlreadyExists when the case already has a room
	CreateRoom(ctx context.Context, room *domain.ChatRoom) error
	FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error)
	FindByCase(ctx context.Context, caseID string) (*domain.ChatRoom, error)
	ListByParticipant(ctx context.Context, role domain.Role, profileID string, activeOnly bool) ([]*domain.ChatRoom, error)
	CountByParticipant(ctx context.Context, role domain.Role, profileID string) (total int64, active int64, err error)
	// TouchActivity only moves updated_at forward
	TouchActivity(ctx context.Context, roomID string, at int64) error
	SetActive(ctx context.Context, roomID string, active bool, at int64) error
}

type chatRoomRepository struct {
	roomsColl *mongo.Collection
}

// NewMongoRoomRepository create mongo backed RoomRepository
func NewMongoRoomRepository(db *mongo.Database) RoomRepository {
	return &chatRoomRepository{
		roomsColl: db.Collection("chat_rooms"),
	}
}

// EnsureIndexes case_id is unique, one room per case
func (r *chatRoomRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.roomsColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "case_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_case_id"),
		},
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "is_active", Value: 1}}},
		{Keys: bson.D{{Key: "lawyer_id", Value: 1}, {Key: "is_active", Value: 1}}},
	})
	return err
}

func (r *chatRoomRepository) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	_, err := r.roomsColl.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("room for case %s: %w", room.CaseID, domain.ErrAlreadyExists)
	}
	return err
}

func (r *chatRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	return r.findOne(ctx, bson.M{"_id": roomID})
}

func (r *chatRoomRepository) FindByCase(ctx context.Context, caseID string) (*domain.ChatRoom, error) {
	return r.findOne(ctx, bson.M{"case_id": caseID})
}

func (r *chatRoomRepository) findOne(ctx context.Context, filter bson.M) (*domain.ChatRoom, error) {
	var room domain.ChatRoom
	err := r.roomsColl.FindOne(ctx, filter).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func participantField(role domain.Role) (string, error) {
	switch role {
	case domain.RoleClient:
		return "client_id", nil
	case domain.RoleLawyer:
		return "lawyer_id", nil
	}
	return "", fmt.Errorf("role %q: %w", role, domain.ErrAccessDenied)
}

// ListByParticipant 依角色找出參與的聊天室, 最近活動在前
func (r *chatRoomRepository) ListByParticipant(ctx context.Context, role domain.Role, profileID string, activeOnly bool) ([]*domain.ChatRoom, error) {
	field, err := participantField(role)
	if err != nil {
		return nil, err
	}

	filter := bson.M{field: profileID}
	if activeOnly {
		filter["is_active"] = true
	}

	cur, err := r.roomsColl.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	rooms := []*domain.ChatRoom{}
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (r *chatRoomRepository) CountByParticipant(ctx context.Context, role domain.Role, profileID string) (int64, int64, error) {
	field, err := participantField(role)
	if err != nil {
		return 0, 0, err
	}

	total, err := r.roomsColl.CountDocuments(ctx, bson.M{field: profileID})
	if err != nil {
		return 0, 0, err
	}
	active, err := r.roomsColl.CountDocuments(ctx, bson.M{field: profileID, "is_active": true})
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func (r *chatRoomRepository) TouchActivity(ctx context.Context, roomID string, at int64) error {
	_, err := r.roomsColl.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$max": bson.M{"updated_at": at}},
	)
	return err
}

func (r *chatRoomRepository) SetActive(ctx context.Context, roomID string, active bool, at int64) error {
	res, err := r.roomsColl.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{
			"$set": bson.M{"is_active": active},
			"$max": bson.M{"updated_at": at},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
