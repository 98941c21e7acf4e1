package router

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/app"
	"github.com/MYCE-Refactoring/myce-backend-sub000/pkg/middlewares"
)

// RegisterRoutes register support chat routes
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	r.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
