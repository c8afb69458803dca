package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/config"
	"case_chat_service/pkg/logger"
	"case_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChatWebsocketHandler 聊天室與通知的 websocket 入口
type ChatWebsocketHandler struct {
	resolver  IdentityResolver
	roomUC    *RoomUseCase
	messageUC *MessageUseCase
	notifUC   *NotificationUseCase
	guard     *AccessGuard
	hub       *Hub
	presence  repository.PresenceRepository
	cfg       config.WebsocketConfig
}

// NewChatWebsocketHandler create ChatWebsocketHandler, presence may be nil
func NewChatWebsocketHandler(
	resolver IdentityResolver,
	roomUC *RoomUseCase,
	messageUC *MessageUseCase,
	notifUC *NotificationUseCase,
	guard *AccessGuard,
	hub *Hub,
	presence repository.PresenceRepository,
	cfg config.WebsocketConfig,
) *ChatWebsocketHandler {
	if presence == nil {
		presence = NewLocalPresence()
	}
	return &ChatWebsocketHandler{
		resolver:  resolver,
		roomUC:    roomUC,
		messageUC: messageUC,
		notifUC:   notifUC,
		guard:     guard,
		hub:       hub,
		presence:  presence,
		cfg:       cfg,
	}
}

// authenticate token from ?auth=, or from Locals when a middleware already parsed it
func (h *ChatWebsocketHandler) authenticate(conn *websocket.Conn) (domain.Identity, error) {
	if id, ok := conn.Locals(middlewares.TokenMemberID).(string); ok && id != "" {
		role, _ := conn.Locals(middlewares.TokenRole).(string)
		return domain.Identity{ID: id, Role: domain.ParseRole(role)}, nil
	}
	return h.resolver.Resolve(conn.Query(middlewares.QueryToken))
}

// HandleRoom /ws/chat/:roomId. Authentication, room lookup and guard failures
// close the socket without sending any frame.
func (h *ChatWebsocketHandler) HandleRoom(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	identity, err := h.authenticate(conn)
	if err != nil {
		logger.Log.Debug("websocket auth failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		return
	}

	roomID := conn.Params("roomId")
	room, err := h.roomUC.GetRoom(ctx, roomID)
	if err != nil {
		logger.Log.Debug("websocket room lookup failed", zap.String("roomID", roomID), zap.Error(err))
		return
	}
	if !h.guard.CanAccess(ctx, identity, room) {
		logger.Log.Info("websocket access denied", zap.String("roomID", roomID), zap.String("userID", identity.ID))
		return
	}

	sess := newSession(conn, identity, h.cfg.SendBuffer, h.cfg.PingInterval, h.cfg.WriteWait)
	sess.username = room.DisplayName(identity.ID)

	h.hub.Subscribe(ScopeRoom, room.ID, sess)
	writerDone := h.startWriter(sess)
	h.join(ctx, room, sess)

	logger.Log.Info("websocket joined room",
		zap.String("roomID", room.ID),
		zap.String("userID", identity.ID),
		zap.String("session", sess.ID()),
	)

	defer func() {
		// 先退訂再釋放 socket
		h.hub.Unsubscribe(ScopeRoom, room.ID, sess)
		h.leave(context.Background(), room, sess)
		sess.close()
		<-writerDone
		logger.Log.Info("websocket left room", zap.String("roomID", room.ID), zap.String("userID", identity.ID))
	}()

	h.readLoop(conn, sess, func(in domain.InboundFrame) {
		h.roomFrame(ctx, room, sess, in)
	})
}

// HandleNotifications /ws/notifications, user scope of the authenticated identity
func (h *ChatWebsocketHandler) HandleNotifications(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	identity, err := h.authenticate(conn)
	if err != nil {
		logger.Log.Debug("notification websocket auth failed", zap.Error(err))
		return
	}

	sess := newSession(conn, identity, h.cfg.SendBuffer, h.cfg.PingInterval, h.cfg.WriteWait)
	h.hub.Subscribe(ScopeUser, identity.ID, sess)
	writerDone := h.startWriter(sess)

	defer func() {
		h.hub.Unsubscribe(ScopeUser, identity.ID, sess)
		sess.close()
		<-writerDone
	}()

	h.readLoop(conn, sess, func(in domain.InboundFrame) {
		h.notificationFrame(ctx, sess, in)
	})
}

func (h *ChatWebsocketHandler) startWriter(sess *session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.writeLoop()
	}()
	return done
}

func (h *ChatWebsocketHandler) join(ctx context.Context, room *domain.ChatRoom, sess *session) {
	n, err := h.presence.Join(ctx, room.ID, sess.UserID())
	if err != nil {
		logger.Log.Warn("presence join failed", zap.String("roomID", room.ID), zap.Error(err))
		return
	}
	if n == 1 {
		h.hub.Broadcast(ctx, ScopeRoom, room.ID,
			domain.UserStatusFrame(sess.UserID(), sess.username, domain.StatusOnline), sess.UserID())
	}
}

func (h *ChatWebsocketHandler) leave(ctx context.Context, room *domain.ChatRoom, sess *session) {
	n, err := h.presence.Leave(ctx, room.ID, sess.UserID())
	if err != nil {
		logger.Log.Warn("presence leave failed", zap.String("roomID", room.ID), zap.Error(err))
		return
	}
	if n == 0 {
		h.hub.Broadcast(ctx, ScopeRoom, room.ID,
			domain.UserStatusFrame(sess.UserID(), sess.username, domain.StatusOffline), sess.UserID())
	}
}

// readLoop 同一連線的 frame 依序處理
func (h *ChatWebsocketHandler) readLoop(conn *websocket.Conn, sess *session, handle func(in domain.InboundFrame)) {
	if h.cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		//server發出ping之後client連線正常會回pong
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		})
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if h.cfg.FramesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.FramesPerSecond), max(h.cfg.FrameBurst, 1))
	}
	malformed := 0

	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Debug("websocket closed by client", zap.String("session", sess.ID()))
			} else {
				//直接斷線 1006
				logger.Log.Debug("websocket read error", zap.String("session", sess.ID()), zap.Error(err))
			}
			return
		}
		if h.cfg.PongWait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
		}

		if !limiter.Allow() {
			sess.Deliver(domain.ErrorFrame("Rate limit exceeded"))
			continue
		}

		var in domain.InboundFrame
		if mt != websocket.TextMessage || json.Unmarshal(raw, &in) != nil {
			malformed++
			logger.Log.Debug("malformed websocket frame", zap.String("session", sess.ID()), zap.Int("count", malformed))
			if h.cfg.MaxMalformedFrame > 0 && malformed >= h.cfg.MaxMalformedFrame {
				logger.Log.Warn("closing websocket after malformed frames",
					zap.String("session", sess.ID()),
					zap.String("userID", sess.UserID()),
				)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many malformed frames"),
					time.Now().Add(time.Second))
				return
			}
			sess.Deliver(domain.ErrorFrame("Invalid JSON"))
			continue
		}
		malformed = 0

		handle(in)
	}
}

func (h *ChatWebsocketHandler) roomFrame(ctx context.Context, room *domain.ChatRoom, sess *session, in domain.InboundFrame) {
	switch in.Type {
	case domain.FrameChatMessage:
		// 廣播由 MessageUseCase 完成, the sender gets its own echo from the room scope
		if _, err := h.messageUC.PostMessage(ctx, room, sess.identity, in.MessageType, in.Text(), in.Attachment); err != nil {
			h.replyError(sess, err)
		}

	case domain.FrameTyping:
		h.hub.Broadcast(ctx, ScopeRoom, room.ID,
			domain.TypingFrame(sess.UserID(), sess.username, in.IsTyping), sess.UserID())

	case domain.FrameMarkRead:
		if in.MessageID == "" {
			sess.Deliver(domain.ErrorFrame("message_id is required"))
			return
		}
		if err := h.messageUC.MarkReadInRoom(ctx, room, sess.identity, in.MessageID); err != nil {
			h.replyError(sess, err)
		}

	default:
		sess.Deliver(domain.ErrorFrame(fmt.Sprintf("Unknown message type: %s", in.Type)))
	}
}

func (h *ChatWebsocketHandler) notificationFrame(ctx context.Context, sess *session, in domain.InboundFrame) {
	switch in.Type {
	case domain.FrameMarkNotificationRead:
		if in.NotificationID == "" {
			sess.Deliver(domain.ErrorFrame("notification_id is required"))
			return
		}
		err := h.notifUC.MarkRead(ctx, in.NotificationID, sess.UserID())
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAccessDenied) {
			sess.Deliver(domain.ErrorFrame("Notification not found"))
			return
		}
		if err != nil {
			h.replyError(sess, err)
			return
		}
		sess.Deliver(domain.OutboundFrame{Type: domain.FrameNotificationRead, NotificationID: in.NotificationID})

	default:
		sess.Deliver(domain.ErrorFrame(fmt.Sprintf("Unknown message type: %s", in.Type)))
	}
}

// replyError 轉成 error frame, unexpected errors are logged and hidden
func (h *ChatWebsocketHandler) replyError(sess *session, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		if errors.Is(err, domain.ErrEmptyContent) {
			sess.Deliver(domain.ErrorFrame("Message content cannot be empty"))
			return
		}
		sess.Deliver(domain.ErrorFrame(err.Error()))
	case domain.KindInvalidState:
		sess.Deliver(domain.ErrorFrame("Chat room is not active"))
	case domain.KindAccessDenied:
		sess.Deliver(domain.ErrorFrame("Access denied"))
	case domain.KindNotFound:
		sess.Deliver(domain.ErrorFrame("Message not found"))
	default:
		logger.Log.Errorf("websocket frame failed", err, zap.String("session", sess.ID()), zap.String("userID", sess.UserID()))
		sess.Deliver(domain.ErrorFrame("Internal error"))
	}
}
