package repository

import (
	"context"
	"fmt"

	"case_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// PubSub cross-process relay
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe runs handler for every message on channels matching pattern until ctx is done
	Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish 發布到指定 channel
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe 以 pattern 訂閱, 確認訂閱成功後才回傳
func (r *RedisPubSub) Subscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) error {
	sub := r.client.PSubscribe(ctx, pattern)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				handler(m.Channel, []byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Info("redis subscription closed", zap.String("pattern", pattern))
				return
			}
		}
	}()
	return nil
}
