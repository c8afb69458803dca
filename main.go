package main

import (
	"case_chat_service/internal/api/router"

	"github.com/gofiber/fiber/v2"
)

// 此程式用於 init swagger
// swag init -g main.go --output ./cmd/chat_service/docs
func main() {
	app := fiber.New()

	// 注册路由
	router.RegisterRoutes(app, nil)
}
