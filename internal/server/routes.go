package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Accept,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")
	api.Get("/rules", s.rulesHandler)

	session := api.Group("/session")
	session.Get("/", s.getSessionHandler)
	session.Post("/start", s.startHandler)
	session.Post("/restore", s.restoreHandler)
	session.Post("/flip", s.flipHandler)
	session.Post("/flip/:token/complete", s.completeHandler)
	session.Post("/cashout", s.cashOutHandler)
	session.Post("/reset", s.resetHandler)
	session.Get("/proof", s.proofHandler)

	api.Get("/sessions/:id/verify", s.verifySessionHandler)
	api.Post("/verify", s.verifyBundleHandler)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", websocket.New(s.webSocketHandler))
}
