package app

import (
	"context"
	"fmt"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier 通知發送介面
type Notifier interface {
	Notify(ctx context.Context, req domain.NotifyRequest) (*domain.ChatNotification, error)
}

// NotificationUseCase persist-then-push fan-out of notifications
type NotificationUseCase struct {
	repo   repository.NotificationRepository
	hub    Broadcaster
	mail   repository.MailQueue
	nowFun func() time.Time
}

// NewNotificationUseCase mail may be nil, email mirroring is then disabled
func NewNotificationUseCase(repo repository.NotificationRepository, hub Broadcaster, mail repository.MailQueue) *NotificationUseCase {
	return &NotificationUseCase{
		repo:   repo,
		hub:    hub,
		mail:   mail,
		nowFun: time.Now,
	}
}

// Notify 先寫入再推送. A push with no live connection is not an error, the
// stored notification is the source of truth.
func (uc *NotificationUseCase) Notify(ctx context.Context, req domain.NotifyRequest) (*domain.ChatNotification, error) {
	if req.RecipientID == "" {
		return nil, fmt.Errorf("%w: notification recipient is empty", domain.ErrValidation)
	}

	n := &domain.ChatNotification{
		ID:          uuid.NewString(),
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		Title:       req.Title,
		Body:        req.Body,
		CreatedAt:   uc.nowFun().UnixNano(),
	}
	if req.Room != nil {
		n.RoomID = req.Room.ID
		n.CaseNumber = req.Room.CaseNumber
	}

	if err := uc.repo.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	if delivered := uc.hub.Broadcast(ctx, ScopeUser, n.RecipientID, domain.NotificationFrame(n), ""); delivered == 0 {
		logger.Log.Debug("recipient offline, notification stored only",
			zap.String("recipientID", n.RecipientID),
			zap.String("notificationID", n.ID),
		)
	}

	if uc.mail != nil {
		job := domain.EmailJob{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			Subject:        n.Title,
			Body:           n.Body,
		}
		if err := uc.mail.Enqueue(ctx, job); err != nil {
			logger.Log.Warn("enqueue notification email failed",
				zap.String("notificationID", n.ID),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

// ListFor newest first
func (uc *NotificationUseCase) ListFor(ctx context.Context, recipientID string, limit int64) ([]*domain.ChatNotification, error) {
	return uc.repo.ListByRecipient(ctx, recipientID, limit)
}

// MarkRead only the recipient may mark its notification
func (uc *NotificationUseCase) MarkRead(ctx context.Context, notificationID, recipientID string) error {
	n, err := uc.repo.FindByID(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.RecipientID != recipientID {
		return domain.ErrAccessDenied
	}
	if n.IsRead {
		return nil
	}
	return uc.repo.MarkRead(ctx, notificationID)
}

// MarkAllRead returns the number of notifications flipped
func (uc *NotificationUseCase) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return uc.repo.MarkAllRead(ctx, recipientID)
}

// CountUnread unread notifications of recipientID
func (uc *NotificationUseCase) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return uc.repo.CountUnread(ctx, recipientID)
}
