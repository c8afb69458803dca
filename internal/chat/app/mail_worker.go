package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/database"
	"case_chat_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// EmailLookup resolve the email address of an identity
type EmailLookup interface {
	FindEmail(ctx context.Context, userID string) (string, error)
}

// MailWorker 消費通知 email 副本並交給 EmailSender
type MailWorker struct {
	rabbit    database.RabbitRepo
	queueName string
	emails    EmailLookup
	sender    repository.EmailSender
}

// NewMailWorker 建構 MailWorker
func NewMailWorker(rabbit database.RabbitRepo, queueName string, emails EmailLookup, sender repository.EmailSender) *MailWorker {
	return &MailWorker{
		rabbit:    rabbit,
		queueName: queueName,
		emails:    emails,
		sender:    sender,
	}
}

// Run 開始消費訊息直到 ctx 結束或 channel 關閉
func (w *MailWorker) Run(ctx context.Context) error {
	msgs, err := w.rabbit.Consume(w.queueName, "chat_mail_worker")
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.queueName, err)
	}
	logger.Log.Info("mail worker started", zap.String("queue", w.queueName))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("mail queue channel closed", zap.String("queue", w.queueName))
				return nil
			}
			w.Handle(ctx, d)
		case <-ctx.Done():
			logger.Log.Info("mail worker stopped")
			return nil
		}
	}
}

// Handle one delivery. Bad payloads are dropped, send failures are requeued once.
func (w *MailWorker) Handle(ctx context.Context, d amqp.Delivery) {
	var job domain.EmailJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		logger.Log.Warn("drop malformed email job", zap.Error(err))
		if err := d.Nack(false, false); err != nil {
			logger.Log.Errorf("Nack 訊息失敗", err)
		}
		return
	}

	if err := w.send(ctx, job); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 沒有 email 的使用者不寄信
			logger.Log.Debug("recipient has no email, skip", zap.String("recipientID", job.RecipientID))
			if err := d.Ack(false); err != nil {
				logger.Log.Errorf("確認訊息失敗", err)
			}
			return
		}

		requeue := !d.Redelivered
		logger.Log.Warn("send notification email failed",
			zap.String("notificationID", job.NotificationID),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		if err := d.Nack(false, requeue); err != nil {
			logger.Log.Errorf("Nack 訊息失敗", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		logger.Log.Errorf("確認訊息失敗", err)
		return
	}
	logger.Log.Debug("notification email sent", zap.String("notificationID", job.NotificationID))
}

func (w *MailWorker) send(ctx context.Context, job domain.EmailJob) error {
	to, err := w.emails.FindEmail(ctx, job.RecipientID)
	if err != nil {
		return err
	}
	if to == "" {
		return domain.ErrNotFound
	}
	return w.sender.Send(ctx, to, job.Subject, job.Body)
}
