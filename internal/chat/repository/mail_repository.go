package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/pkg/database"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/streadway/amqp"
)

// MailQueue 寄信工作佇列
type MailQueue interface {
	Enqueue(ctx context.Context, job domain.EmailJob) error
}

type rabbitMailQueue struct {
	rabbit database.RabbitRepo
	queue  string
}

// NewRabbitMailQueue publish email jobs to a durable rabbitmq queue
func NewRabbitMailQueue(rabbit database.RabbitRepo, queue string) (MailQueue, error) {
	if err := rabbit.DeclareQueue(queue); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &rabbitMailQueue{rabbit: rabbit, queue: queue}, nil
}

func (q *rabbitMailQueue) Enqueue(_ context.Context, job domain.EmailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rabbit.Publish("", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// EmailSender deliver one email
type EmailSender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

type sendGridSender struct {
	client    *sendgrid.Client
	fromName  string
	fromEmail string
}

// NewSendGridSender create SendGrid backed EmailSender
func NewSendGridSender(apiKey, fromName, fromEmail string) EmailSender {
	return &sendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *sendGridSender) Send(ctx context.Context, toEmail, subject, body string) error {
	msg := mail.NewSingleEmailPlainText(
		mail.NewEmail(s.fromName, s.fromEmail),
		subject,
		mail.NewEmail("", toEmail),
		body,
	)
	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid error: status %d", resp.StatusCode)
	}
	return nil
}
