package router

import (
	"case_chat_service/internal/api/handlers"
	"case_chat_service/pkg/middlewares"
	t_token "case_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

// RegisterRoutes 註冊聊天 REST API
// @title Case Chat Service API
// @version 1.0
// @description Chat rooms, messages and notifications of legal cases
// @host localhost:8083
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(app *fiber.App, chatHandler *handlers.ChatHandler) {
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/", handlers.ConnectCheck)
	app.Get("/debug", handlers.DebugLogFlag)
	app.Post("/debug", handlers.DebugLogFlag)

	if chatHandler == nil {
		return
	}

	chat := app.Group("/chat", middlewares.JWTMiddleware())
	admin := middlewares.RequireRole(t_token.RoleAdmin)

	chat.Get("/rooms", chatHandler.ListRooms)
	chat.Get("/rooms/case/:caseId", chatHandler.GetRoomByCase)
	chat.Post("/rooms/case/:caseId", admin, chatHandler.CreateRoom)
	chat.Get("/rooms/:id", chatHandler.GetRoom)
	chat.Post("/rooms/:id/deactivate", admin, chatHandler.DeactivateRoom)
	chat.Get("/rooms/:id/online", chatHandler.OnlineUsers)
	chat.Get("/rooms/:id/messages", chatHandler.ListMessages)
	chat.Post("/rooms/:id/messages", chatHandler.PostMessage)
	chat.Post("/rooms/:id/system-message", admin, chatHandler.PostSystemMessage)
	chat.Post("/messages/:id/read", chatHandler.MarkMessageRead)

	chat.Get("/notifications", chatHandler.ListNotifications)
	chat.Post("/notifications/read-all", chatHandler.MarkAllNotificationsRead)
	chat.Post("/notifications/:id/read", chatHandler.MarkNotificationRead)

	chat.Get("/stats", chatHandler.Stats)
}
