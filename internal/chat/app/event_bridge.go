package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrBridgeQueueFull Submit could not enqueue the event
var ErrBridgeQueueFull = errors.New("event bridge queue is full")

// RoomOpener registry operations used by the bridge
type RoomOpener interface {
	CreateRoom(ctx context.Context, ref domain.CaseRef) (*domain.ChatRoom, error)
	GetRoomByCase(ctx context.Context, caseID string) (*domain.ChatRoom, error)
}

// EventBridge 把案件狀態事件轉成聊天室建立與狀態通知.
// Failures never propagate back to the producer, they are logged and stored for retry.
type EventBridge struct {
	rooms    RoomOpener
	notifier Notifier
	failures repository.FailureRepository
	dedupe   repository.EventDeduper

	queue       chan domain.CaseEvent
	maxAttempts int
}

// NewEventBridge failures and dedupe may be nil
func NewEventBridge(
	rooms RoomOpener,
	notifier Notifier,
	failures repository.FailureRepository,
	dedupe repository.EventDeduper,
	queueSize int,
	maxAttempts int,
) *EventBridge {
	if queueSize <= 0 {
		queueSize = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &EventBridge{
		rooms:       rooms,
		notifier:    notifier,
		failures:    failures,
		dedupe:      dedupe,
		queue:       make(chan domain.CaseEvent, queueSize),
		maxAttempts: maxAttempts,
	}
}

// Submit 非阻塞送入佇列. Events without an id get one derived from the
// transition so a resent event is deduped like a redelivered kafka message.
func (b *EventBridge) Submit(ev domain.CaseEvent) error {
	if ev.EventID == "" {
		ev.EventID = fmt.Sprintf("case:%s:%s:%s", ev.CaseID, ev.Status, ev.LawyerID)
	}
	select {
	case b.queue <- ev:
		return nil
	default:
		logger.Log.Warn("event bridge queue full",
			zap.String("caseID", ev.CaseID),
			zap.String("eventID", ev.EventID),
		)
		b.recordFailure(context.Background(), ev, ErrBridgeQueueFull)
		return ErrBridgeQueueFull
	}
}

// Run drain the queue until ctx is done
func (b *EventBridge) Run(ctx context.Context) error {
	logger.Log.Info("event bridge started")
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("event bridge stopped")
			return nil
		case ev := <-b.queue:
			_ = b.Process(ctx, ev)
		}
	}
}

// Process handle ev and isolate its failure, the returned error is informational
func (b *EventBridge) Process(ctx context.Context, ev domain.CaseEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event bridge panic: %v", r)
		}
		if err != nil {
			logger.Log.Errorf("case event handling failed", err,
				zap.String("caseID", ev.CaseID),
				zap.String("eventID", ev.EventID),
				zap.String("status", string(ev.Status)),
			)
			b.recordFailure(ctx, ev, err)
		}
	}()
	return b.Handle(ctx, ev)
}

// Handle 單一事件. A room that already exists for an "assigned" event is not an error.
func (b *EventBridge) Handle(ctx context.Context, ev domain.CaseEvent) (err error) {
	if ev.CaseID == "" {
		// 格式錯誤重試也無用
		logger.Log.Warn("drop case event without case id", zap.String("eventID", ev.EventID))
		return nil
	}

	if ev.EventID != "" && b.dedupe != nil {
		first, dErr := b.dedupe.FirstSeen(ctx, ev.EventID)
		if dErr != nil {
			logger.Log.Warn("event dedupe unavailable", zap.String("eventID", ev.EventID), zap.Error(dErr))
		} else if !first {
			logger.Log.Debug("duplicate case event skipped", zap.String("eventID", ev.EventID))
			return nil
		}
		defer func() {
			if err != nil {
				if fErr := b.dedupe.Forget(ctx, ev.EventID); fErr != nil {
					logger.Log.Warn("forget event id failed", zap.String("eventID", ev.EventID), zap.Error(fErr))
				}
			}
		}()
	}

	room, err := b.rooms.GetRoomByCase(ctx, ev.CaseID)
	switch {
	case err == nil:
		return b.notifyStatus(ctx, room, ev)
	case errors.Is(err, domain.ErrNotFound):
		if !ev.OpensRoom() {
			return nil
		}
		_, err = b.rooms.CreateRoom(ctx, ev.Ref())
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("find room of case %s: %w", ev.CaseID, err)
	}
}

// notifyStatus 每個收件者各自去重, a retry only reaches the recipients that failed
func (b *EventBridge) notifyStatus(ctx context.Context, room *domain.ChatRoom, ev domain.CaseEvent) error {
	var errs []error
	for _, req := range domain.CaseStatusNotifications(room, ev.Status) {
		if req.RecipientID == "" {
			continue
		}

		key := ""
		if ev.EventID != "" && b.dedupe != nil {
			key = ev.EventID + ":" + req.RecipientID
			first, err := b.dedupe.FirstSeen(ctx, key)
			switch {
			case err != nil:
				logger.Log.Warn("recipient dedupe unavailable", zap.String("key", key), zap.Error(err))
				key = ""
			case !first:
				continue
			}
		}

		if _, err := b.notifier.Notify(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", req.RecipientID, err))
			if key != "" {
				if fErr := b.dedupe.Forget(ctx, key); fErr != nil {
					logger.Log.Warn("forget recipient key failed", zap.String("key", key), zap.Error(fErr))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (b *EventBridge) recordFailure(ctx context.Context, ev domain.CaseEvent, cause error) {
	if b.failures == nil {
		return
	}
	if err := b.failures.Record(ctx, ev, cause); err != nil {
		logger.Log.Errorf("record case event failure", err, zap.String("caseID", ev.CaseID))
	}
}

// RetryFailed 重跑尚未成功的事件, returns how many were resolved
func (b *EventBridge) RetryFailed(ctx context.Context) (int, error) {
	if b.failures == nil {
		return 0, nil
	}
	pending, err := b.failures.ListPending(ctx, b.maxAttempts, 100)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, f := range pending {
		var ev domain.CaseEvent
		if err := json.Unmarshal([]byte(f.Payload), &ev); err != nil {
			// 無法解析的 payload 不會再成功
			_ = b.failures.MarkResolved(ctx, f.ID)
			logger.Log.Warn("drop undecodable failed event", zap.Uint("id", f.ID), zap.Error(err))
			continue
		}

		if herr := b.Handle(ctx, ev); herr != nil {
			if err := b.failures.MarkFailed(ctx, f.ID, herr); err != nil {
				logger.Log.Errorf("mark failed event", err, zap.Uint("id", f.ID))
			}
			continue
		}
		if err := b.failures.MarkResolved(ctx, f.ID); err != nil {
			logger.Log.Errorf("mark resolved event", err, zap.Uint("id", f.ID))
			continue
		}
		resolved++
	}

	if len(pending) > 0 {
		logger.Log.Info("case event retry finished",
			zap.Int("pending", len(pending)),
			zap.Int("resolved", resolved),
		)
	}
	return resolved, nil
}

// StartRetryCron schedule RetryFailed with a cron spec such as "@every 1m"
func (b *EventBridge) StartRetryCron(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := b.RetryFailed(ctx); err != nil {
			logger.Log.Errorf("case event retry failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule case event retry %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
