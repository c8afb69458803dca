package repository

import (
	"context"
	"errors"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/database"
	"case_chat_service/pkg/logger"

	"go.uber.org/zap"
)

type cachedDirectory struct {
	DirectoryRepository
	cache database.RedisRepository[string]
	ttl   time.Duration
}

// NewCachedDirectory read-through redis cache in front of profile id lookups.
// Missing profiles are not cached so a newly created profile is visible at once.
func NewCachedDirectory(next DirectoryRepository, cache database.RedisRepository[string], ttl time.Duration) DirectoryRepository {
	return &cachedDirectory{DirectoryRepository: next, cache: cache, ttl: ttl}
}

func (c *cachedDirectory) FindProfileID(ctx context.Context, userID string, role domain.Role) (string, error) {
	key := string(role) + ":" + userID

	id, err := c.cache.Get(ctx, key)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, database.ErrCacheMiss) {
		logger.Log.Warn("profile cache read failed", zap.String("key", key), zap.Error(err))
	}

	id, err = c.DirectoryRepository.FindProfileID(ctx, userID, role)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, id, c.ttl); err != nil {
		logger.Log.Warn("profile cache write failed", zap.String("key", key), zap.Error(err))
	}
	return id, nil
}
