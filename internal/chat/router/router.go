package router

import (
	"context"

	"case_chat_service/internal/chat/app"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 websocket 路由. Authentication happens inside the handler
// so that a failed check closes the socket instead of answering 401.
func RegisterRoutes(ctx context.Context, r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	ws := r.Group("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	ws.Get("/chat/:roomId", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleRoom(ctx, c)
	}))

	ws.Get("/notifications", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleNotifications(ctx, c)
	}))
}
