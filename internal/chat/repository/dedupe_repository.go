package repository

import (
	"context"
	"time"

	"case_chat_service/pkg/database"
)

// EventDeduper remembers processed event ids
type EventDeduper interface {
	// FirstSeen true the first time eventID is offered within ttl
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	// Forget allow eventID to be processed again
	Forget(ctx context.Context, eventID string) error
}

type redisEventDeduper struct {
	store database.RedisRepository[int64]
	ttl   time.Duration
}

// NewRedisEventDeduper SETNX based deduper
func NewRedisEventDeduper(store database.RedisRepository[int64], ttl time.Duration) EventDeduper {
	return &redisEventDeduper{store: store, ttl: ttl}
}

func (d *redisEventDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.store.SetNX(ctx, eventID, time.Now().Unix(), d.ttl)
}

func (d *redisEventDeduper) Forget(ctx context.Context, eventID string) error {
	return d.store.Del(ctx, eventID)
}
