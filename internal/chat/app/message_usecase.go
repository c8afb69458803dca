package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg"
	"case_chat_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttachmentSigner presigned download url of an attachment object
type AttachmentSigner interface {
	PresignGetURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// MessageUseCase 負責處理聊天訊息
type MessageUseCase struct {
	roomRepo repository.RoomRepository
	msgRepo  repository.MessageRepository
	readRepo repository.ReadStatusRepository
	guard    *AccessGuard
	notifier Notifier
	hub      Broadcaster

	signer        AttachmentSigner
	presignExpiry time.Duration

	locks  *keyedMutex
	clock  *roomClock
	nowFun func() time.Time
}

// NewMessageUseCase init message use case
func NewMessageUseCase(
	roomRepo repository.RoomRepository,
	msgRepo repository.MessageRepository,
	readRepo repository.ReadStatusRepository,
	guard *AccessGuard,
	notifier Notifier,
	hub Broadcaster,
) *MessageUseCase {
	return &MessageUseCase{
		roomRepo: roomRepo,
		msgRepo:  msgRepo,
		readRepo: readRepo,
		guard:    guard,
		notifier: notifier,
		hub:      hub,
		locks:    newKeyedMutex(),
		clock:    newRoomClock(msgRepo.LastCreatedAt),
		nowFun:   time.Now,
	}
}

// WithAttachmentSigner enable attachment_url in message views
func (uc *MessageUseCase) WithAttachmentSigner(signer AttachmentSigner, expiry time.Duration) *MessageUseCase {
	uc.signer = signer
	uc.presignExpiry = expiry
	return uc
}

// PostMessage 儲存並廣播一則使用者訊息, then notify the other participant
func (uc *MessageUseCase) PostMessage(
	ctx context.Context,
	room *domain.ChatRoom,
	sender domain.Identity,
	msgType domain.MessageType,
	content string,
	attachment string,
) (*domain.MessageView, error) {
	if msgType == "" {
		msgType = domain.MessageText
	}
	if !msgType.Valid() || msgType == domain.MessageSystem {
		return nil, fmt.Errorf("%w: unsupported message type %q", domain.ErrValidation, msgType)
	}
	if msgType == domain.MessageText && pkg.IsBlank(content) {
		return nil, domain.ErrEmptyContent
	}
	if msgType != domain.MessageText && pkg.IsBlank(content) && pkg.IsBlank(attachment) {
		return nil, domain.ErrEmptyContent
	}
	if room == nil {
		return nil, domain.ErrNotFound
	}
	if !uc.guard.CanAccess(ctx, sender, room) {
		return nil, domain.ErrAccessDenied
	}
	if !room.IsActive {
		return nil, fmt.Errorf("%w: chat room %s is inactive", domain.ErrInvalidState, room.ID)
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		SenderID:   sender.ID,
		SenderRole: sender.Role,
		Type:       msgType,
		Content:    strings.TrimSpace(content),
		Attachment: attachment,
	}

	view, err := uc.persistAndBroadcast(ctx, room, msg)
	if err != nil {
		return nil, err
	}

	if other := room.OtherUserID(sender.ID); other != "" {
		if _, err := uc.notifier.Notify(ctx, domain.NewMessageNotification(room, msg)); err != nil {
			logger.Log.Warn("new_message notification failed",
				zap.String("roomID", room.ID),
				zap.String("messageID", msg.ID),
				zap.Error(err),
			)
		}
	}
	return view.ForViewer(sender.ID), nil
}

// PostSystemMessage 平台訊息, allowed on inactive rooms and never notified
func (uc *MessageUseCase) PostSystemMessage(ctx context.Context, roomID, content string) (*domain.MessageView, error) {
	if pkg.IsBlank(content) {
		return nil, domain.ErrEmptyContent
	}
	room, err := uc.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{
		ID:      uuid.NewString(),
		RoomID:  room.ID,
		Type:    domain.MessageSystem,
		Content: strings.TrimSpace(content),
	}
	return uc.persistAndBroadcast(ctx, room, msg)
}

// persistAndBroadcast 同一聊天室的寫入與廣播依序進行
func (uc *MessageUseCase) persistAndBroadcast(ctx context.Context, room *domain.ChatRoom, msg *domain.Message) (*domain.MessageView, error) {
	unlock := uc.locks.Lock(room.ID)
	defer unlock()

	// 呼叫端的 room 可能是加入時的快照, 以儲存的狀態為準
	if msg.Type != domain.MessageSystem {
		current, err := uc.roomRepo.FindByID(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if !current.IsActive {
			return nil, fmt.Errorf("%w: chat room %s is inactive", domain.ErrInvalidState, room.ID)
		}
	}

	ts, err := uc.clock.Next(ctx, room.ID, uc.nowFun().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("room clock: %w", err)
	}
	msg.CreatedAt = ts
	msg.UpdatedAt = ts

	if err := uc.msgRepo.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if err := uc.roomRepo.TouchActivity(ctx, room.ID, ts); err != nil {
		logger.Log.Warn("touch room activity failed", zap.String("roomID", room.ID), zap.Error(err))
	}
	if ts > room.UpdatedAt {
		room.UpdatedAt = ts
	}

	view := uc.View(ctx, msg, room, "")
	uc.hub.Broadcast(ctx, ScopeRoom, room.ID, domain.ChatMessageFrame(view), "")
	return view, nil
}

// ListMessages 依建立時間排序, unread messages from the other side are marked read on view
// and returned in their post-read state.
func (uc *MessageUseCase) ListMessages(ctx context.Context, room *domain.ChatRoom, viewer domain.Identity, includeDeleted bool) ([]*domain.MessageView, error) {
	if room == nil || !uc.guard.CanAccess(ctx, viewer, room) {
		return nil, domain.ErrAccessDenied
	}

	// 先標記再列出, a message that arrives in between stays unread
	unread, err := uc.msgRepo.ListUnreadFor(ctx, room.ID, viewer.ID)
	if err != nil {
		return nil, err
	}

	now := uc.nowFun().UnixNano()
	readIDs := []string{}
	for _, m := range unread {
		if m.Type == domain.MessageSystem {
			continue
		}
		flipped, err := uc.markRead(ctx, m, viewer.ID, now)
		if err != nil {
			return nil, err
		}
		if flipped {
			readIDs = append(readIDs, m.ID)
		}
	}

	msgs, err := uc.msgRepo.ListByRoom(ctx, room.ID, includeDeleted)
	if err != nil {
		return nil, err
	}

	if len(readIDs) > 0 {
		uc.hub.Broadcast(ctx, ScopeRoom, room.ID, domain.MarkReadFrame(viewer.ID, now, readIDs...), viewer.ID)
	}

	views := make([]*domain.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, uc.View(ctx, m, room, viewer.ID))
	}
	return views, nil
}

// MarkRead load the message and its room, then MarkReadInRoom
func (uc *MessageUseCase) MarkRead(ctx context.Context, reader domain.Identity, messageID string) error {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	room, err := uc.roomRepo.FindByID(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if !uc.guard.CanAccess(ctx, reader, room) {
		return domain.ErrAccessDenied
	}
	return uc.markReadMessage(ctx, room, reader, msg)
}

// MarkReadInRoom reader already joined room, messageID must belong to it
func (uc *MessageUseCase) MarkReadInRoom(ctx context.Context, room *domain.ChatRoom, reader domain.Identity, messageID string) error {
	msg, err := uc.msgRepo.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.RoomID != room.ID {
		return domain.ErrNotFound
	}
	return uc.markReadMessage(ctx, room, reader, msg)
}

func (uc *MessageUseCase) markReadMessage(ctx context.Context, room *domain.ChatRoom, reader domain.Identity, msg *domain.Message) error {
	// 自己的訊息不需要已讀
	if msg.SenderID == reader.ID {
		return nil
	}
	if msg.IsRead {
		seen, err := uc.readRepo.Exists(ctx, msg.ID, reader.ID)
		if err != nil {
			return fmt.Errorf("check read receipt: %w", err)
		}
		if seen {
			return nil
		}
	}
	now := uc.nowFun().UnixNano()
	flipped, err := uc.markRead(ctx, msg, reader.ID, now)
	if err != nil {
		return err
	}
	if flipped {
		uc.hub.Broadcast(ctx, ScopeRoom, room.ID, domain.MarkReadFrame(reader.ID, now, msg.ID), reader.ID)
	}
	return nil
}

// markRead flip is_read once and write the receipt, m is updated in place
func (uc *MessageUseCase) markRead(ctx context.Context, m *domain.Message, readerID string, at int64) (bool, error) {
	flipped, err := uc.msgRepo.MarkRead(ctx, m.ID, at)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	if flipped {
		m.IsRead = true
		m.ReadAt = at
	}

	_, err = uc.readRepo.Insert(ctx, &domain.MessageReadStatus{
		ID:        uuid.NewString(),
		MessageID: m.ID,
		RoomID:    m.RoomID,
		ReaderID:  readerID,
		ReadAt:    at,
	})
	if err != nil {
		return flipped, fmt.Errorf("insert read receipt: %w", err)
	}
	return flipped, nil
}

// View render m for viewerID, attachment_url is filled when a signer is configured
func (uc *MessageUseCase) View(ctx context.Context, m *domain.Message, room *domain.ChatRoom, viewerID string) *domain.MessageView {
	v := domain.NewMessageView(m, room, viewerID)
	if uc.signer != nil && m.Attachment != "" && !isURL(m.Attachment) {
		url, err := uc.signer.PresignGetURL(ctx, m.Attachment, uc.presignExpiry)
		if err != nil {
			logger.Log.Warn("presign attachment failed",
				zap.String("messageID", m.ID),
				zap.String("attachment", m.Attachment),
				zap.Error(err),
			)
		} else {
			v.AttachmentURL = url
		}
	}
	return v
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
