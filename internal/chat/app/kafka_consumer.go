package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CaseEventReader subset of *kafka.Reader
type CaseEventReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CaseEventProcessor handles one event and isolates its failure
type CaseEventProcessor interface {
	Process(ctx context.Context, ev domain.CaseEvent) error
}

// KafkaCaseEventConsumer 從 kafka topic 讀取案件事件交給 EventBridge
type KafkaCaseEventConsumer struct {
	reader     CaseEventReader
	bridge     CaseEventProcessor
	newBackOff func() backoff.BackOff
}

// NewKafkaCaseEventConsumer create consumer, fetch errors are retried with exponential backoff
func NewKafkaCaseEventConsumer(reader CaseEventReader, bridge CaseEventProcessor) *KafkaCaseEventConsumer {
	return &KafkaCaseEventConsumer{reader: reader, bridge: bridge, newBackOff: defaultFetchBackOff}
}

func defaultFetchBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	// 不放棄, broker 恢復後繼續消費
	b.MaxElapsedTime = 0
	return b
}

// WithFetchBackOff replace the retry policy of FetchMessage failures
func (c *KafkaCaseEventConsumer) WithFetchBackOff(newBackOff func() backoff.BackOff) *KafkaCaseEventConsumer {
	c.newBackOff = newBackOff
	return c
}

// DecodeCaseEvent json payload to CaseEvent, a missing event id is derived from the kafka position
func DecodeCaseEvent(m kafka.Message) (domain.CaseEvent, error) {
	var ev domain.CaseEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, fmt.Errorf("%w: decode case event: %v", domain.ErrValidation, err)
	}
	if ev.CaseID == "" {
		return ev, fmt.Errorf("%w: case event without case_id", domain.ErrValidation)
	}
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("kafka:%s:%d:%d", m.Topic, m.Partition, m.Offset)
	}
	return ev, nil
}

// Run 處理訊息直到 ctx 結束. Offsets are committed after processing, failed
// events are already persisted by the bridge so they are committed as well.
// An error is returned only when the fetch backoff gives up.
func (c *KafkaCaseEventConsumer) Run(ctx context.Context) error {
	logger.Log.Info("case event consumer started")
	bo := c.newBackOff()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Log.Info("case event consumer stopped")
				return nil
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return fmt.Errorf("fetch case event: %w", err)
			}
			logger.Log.Warn("fetch case event failed, retrying", zap.Duration("backoff", wait), zap.Error(err))
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				logger.Log.Info("case event consumer stopped")
				return nil
			}
		}
		bo.Reset()

		ev, err := DecodeCaseEvent(m)
		if err != nil {
			logger.Log.Warn("skip malformed case event",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		} else {
			_ = c.bridge.Process(ctx, ev)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Log.Errorf("commit case event offset", err, zap.Int64("offset", m.Offset))
		}
	}
}

// Close close the underlying reader
func (c *KafkaCaseEventConsumer) Close() error {
	return c.reader.Close()
}
