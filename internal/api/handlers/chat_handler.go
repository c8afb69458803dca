package handlers

import (
	"strconv"

	"case_chat_service/internal/chat/app"
	"case_chat_service/internal/chat/domain"
	"case_chat_service/internal/chat/repository"
	"case_chat_service/pkg/logger"
	"case_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultNotificationLimit = 50

// ErrorResponse error body of every chat endpoint
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PostMessageRequest body of POST /chat/rooms/{id}/messages
type PostMessageRequest struct {
	MessageType domain.MessageType `json:"message_type"`
	Content     string             `json:"content"`
	Attachment  string             `json:"attachment"`
}

// SystemMessageRequest body of POST /chat/rooms/{id}/system-message
type SystemMessageRequest struct {
	Content string `json:"content"`
}

// ChatHandler 聊天室 REST API
type ChatHandler struct {
	roomUC    *app.RoomUseCase
	messageUC *app.MessageUseCase
	notifUC   *app.NotificationUseCase
	statsUC   *app.StatsUseCase
	presence  repository.PresenceRepository
}

// NewChatHandler create ChatHandler
func NewChatHandler(
	roomUC *app.RoomUseCase,
	messageUC *app.MessageUseCase,
	notifUC *app.NotificationUseCase,
	statsUC *app.StatsUseCase,
	presence repository.PresenceRepository,
) *ChatHandler {
	return &ChatHandler{
		roomUC:    roomUC,
		messageUC: messageUC,
		notifUC:   notifUC,
		statsUC:   statsUC,
		presence:  presence,
	}
}

func identityOf(c *fiber.Ctx) domain.Identity {
	id, _ := c.Locals(middlewares.TokenMemberID).(string)
	role, _ := c.Locals(middlewares.TokenRole).(string)
	return domain.Identity{ID: id, Role: domain.ParseRole(role)}
}

// respondError 錯誤分類轉成 http status
func respondError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	status := fiber.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case domain.KindAccessDenied:
		status = fiber.StatusForbidden
		msg = "You do not have access to this resource"
	case domain.KindNotFound:
		status = fiber.StatusNotFound
	case domain.KindInvalidState:
		status = fiber.StatusUnprocessableEntity
	case domain.KindAlreadyExists:
		status = fiber.StatusConflict
	case domain.KindValidation:
		status = fiber.StatusBadRequest
	default:
		logger.Log.Errorf("chat api error", err, zap.String("path", c.Path()))
		msg = "internal server error"
	}
	return c.Status(status).JSON(ErrorResponse{Error: string(kind), Message: msg})
}

// ListRooms active chat rooms of the caller
// @Summary List chat rooms
// @Description Active chat rooms where the caller is the client or the lawyer
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.ChatRoom
// @Failure 401 {object} ErrorResponse
// @Router /chat/rooms [get]
func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.roomUC.ListRoomsFor(c.UserContext(), identityOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rooms)
}

// GetRoom chat room by id
// @Summary Get chat room
// @Description A missing room and a room the caller cannot access both answer 403
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Success 200 {object} domain.ChatRoom
// @Failure 403 {object} ErrorResponse
// @Router /chat/rooms/{id} [get]
func (h *ChatHandler) GetRoom(c *fiber.Ctx) error {
	room, err := h.roomUC.GetRoomFor(c.UserContext(), identityOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// GetRoomByCase chat room of a case
// @Summary Get chat room by case
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param caseId path string true "Case ID"
// @Success 200 {object} domain.ChatRoom
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/rooms/case/{caseId} [get]
func (h *ChatHandler) GetRoomByCase(c *fiber.Ctx) error {
	identity := identityOf(c)
	caseID := c.Params("caseId")

	var (
		room *domain.ChatRoom
		err  error
	)
	if identity.Role == domain.RoleAdmin {
		room, err = h.roomUC.GetRoomByCase(c.UserContext(), caseID)
	} else {
		room, err = h.roomUC.GetRoomByCaseFor(c.UserContext(), identity, caseID)
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// CreateRoom open the chat room of a case (admin)
// @Summary Create chat room for case
// @Tags Chat Admin
// @Produce json
// @Security BearerAuth
// @Param caseId path string true "Case ID"
// @Success 201 {object} domain.ChatRoom
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /chat/rooms/case/{caseId} [post]
func (h *ChatHandler) CreateRoom(c *fiber.Ctx) error {
	room, err := h.roomUC.CreateRoomForCase(c.UserContext(), c.Params("caseId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// DeactivateRoom (admin)
// @Summary Deactivate chat room
// @Tags Chat Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Success 200 {object} domain.ChatRoom
// @Failure 404 {object} ErrorResponse
// @Router /chat/rooms/{id}/deactivate [post]
func (h *ChatHandler) DeactivateRoom(c *fiber.Ctx) error {
	room, err := h.roomUC.Deactivate(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(room)
}

// OnlineUsers identities currently connected to the room
// @Summary Online users of a chat room
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Success 200 {object} map[string][]string
// @Failure 403 {object} ErrorResponse
// @Router /chat/rooms/{id}/online [get]
func (h *ChatHandler) OnlineUsers(c *fiber.Ctx) error {
	room, err := h.roomUC.GetRoomFor(c.UserContext(), identityOf(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	users, err := h.presence.Online(c.UserContext(), room.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"online_users": users})
}

// ListMessages messages of a room, unread messages from the other side become read.
// Soft deleted messages are never returned to participants.
// @Summary List chat messages
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Success 200 {array} domain.MessageView
// @Failure 403 {object} ErrorResponse
// @Router /chat/rooms/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	identity := identityOf(c)
	room, err := h.roomUC.GetRoomFor(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	msgs, err := h.messageUC.ListMessages(c.UserContext(), room, identity, false)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(msgs)
}

// PostMessage send a message to a room
// @Summary Post chat message
// @Tags Chat
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Param request body PostMessageRequest true "Message"
// @Success 201 {object} domain.MessageView
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /chat/rooms/{id}/messages [post]
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	var req PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: string(domain.KindValidation), Message: "invalid request"})
	}

	identity := identityOf(c)
	room, err := h.roomUC.GetRoomFor(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.messageUC.PostMessage(c.UserContext(), room, identity, req.MessageType, req.Content, req.Attachment)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// PostSystemMessage platform message (admin)
// @Summary Post system message
// @Tags Chat Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Chat room ID"
// @Param request body SystemMessageRequest true "Message"
// @Success 201 {object} domain.MessageView
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/rooms/{id}/system-message [post]
func (h *ChatHandler) PostSystemMessage(c *fiber.Ctx) error {
	var req SystemMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: string(domain.KindValidation), Message: "invalid request"})
	}
	view, err := h.messageUC.PostSystemMessage(c.UserContext(), c.Params("id"), req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// MarkMessageRead mark one message read
// @Summary Mark message read
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Param id path string true "Message ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/messages/{id}/read [post]
func (h *ChatHandler) MarkMessageRead(c *fiber.Ctx) error {
	if err := h.messageUC.MarkRead(c.UserContext(), identityOf(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListNotifications notifications of the caller, newest first
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max notifications"
// @Success 200 {array} domain.ChatNotification
// @Router /chat/notifications [get]
func (h *ChatHandler) ListNotifications(c *fiber.Ctx) error {
	limit, err := strconv.ParseInt(c.Query("limit", strconv.Itoa(defaultNotificationLimit)), 10, 64)
	if err != nil || limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: string(domain.KindValidation), Message: "invalid limit"})
	}
	list, err := h.notifUC.ListFor(c.UserContext(), identityOf(c).ID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// MarkNotificationRead mark one notification read
// @Summary Mark notification read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/notifications/{id}/read [post]
func (h *ChatHandler) MarkNotificationRead(c *fiber.Ctx) error {
	err := h.notifUC.MarkRead(c.UserContext(), c.Params("id"), identityOf(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// MarkAllNotificationsRead mark every notification of the caller read
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /chat/notifications/read-all [post]
func (h *ChatHandler) MarkAllNotificationsRead(c *fiber.Ctx) error {
	n, err := h.notifUC.MarkAllRead(c.UserContext(), identityOf(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

// Stats chat statistics of the caller
// @Summary Chat statistics
// @Tags Chat
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.ChatStats
// @Router /chat/stats [get]
func (h *ChatHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.statsUC.Stats(c.UserContext(), identityOf(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
