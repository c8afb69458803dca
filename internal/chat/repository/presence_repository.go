package repository

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// PresenceRepository 聊天室在線名單, one counter per user so several tabs count once
type PresenceRepository interface {
	// Join returns the user's connection count in the room after joining
	Join(ctx context.Context, roomID, userID string) (int64, error)
	// Leave returns the remaining connection count, the user is removed at zero
	Leave(ctx context.Context, roomID, userID string) (int64, error)
	Online(ctx context.Context, roomID string) ([]string, error)
}

type redisPresenceRepository struct {
	client redis.UniversalClient
}

// NewRedisPresenceRepository create redis hash backed presence
func NewRedisPresenceRepository(client redis.UniversalClient) PresenceRepository {
	return &redisPresenceRepository{client: client}
}

func presenceKey(roomID string) string {
	return "chat:presence:" + roomID
}

func (r *redisPresenceRepository) Join(ctx context.Context, roomID, userID string) (int64, error) {
	return r.client.HIncrBy(ctx, presenceKey(roomID), userID, 1).Result()
}

func (r *redisPresenceRepository) Leave(ctx context.Context, roomID, userID string) (int64, error) {
	n, err := r.client.HIncrBy(ctx, presenceKey(roomID), userID, -1).Result()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		if err := r.client.HDel(ctx, presenceKey(roomID), userID).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

func (r *redisPresenceRepository) Online(ctx context.Context, roomID string) ([]string, error) {
	all, err := r.client.HGetAll(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(all))
	for userID, count := range all {
		if count != "0" && count != "" && count[0] != '-' {
			users = append(users, userID)
		}
	}
	return users, nil
}
