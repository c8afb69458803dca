package database

import (
	"context"
	"fmt"
	"time"

	"case_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaReaderWithRetry 先確認至少一個 broker 可連線, 再建立 consumer group reader
func NewKafkaReaderWithRetry(ctx context.Context, k KafkaConnection) (*kafka.Reader, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	var err error
	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		if err == nil {
			_ = conn.Close()
			logger.Log.Info("Kafka broker reachable",
				zap.String("broker", k.Brokers[0]),
				zap.Int("attempt", attempt),
			)
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:        k.Brokers,
				Topic:          k.Topic,
				GroupID:        k.GroupID,
				MinBytes:       1,
				MaxBytes:       10e6,
				CommitInterval: 0,
			}), nil
		}

		logger.Log.Warn("Kafka dial failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max", k.RetryCount),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval)
	}

	return nil, fmt.Errorf("kafka unreachable after %d attempts: %w", k.RetryCount, err)
}
