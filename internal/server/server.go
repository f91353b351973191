package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"flipzone/internal/cache"
	"flipzone/internal/database"
	"flipzone/internal/game"
)

// AuditSource looks up recorded sessions for re-verification.
type AuditSource interface {
	SessionAudit(ctx context.Context, sessionID string) (*database.SessionAudit, error)
}

// Deps are the collaborators the HTTP layer serves. DB, Cache and Audit may be nil.
type Deps struct {
	Engine *game.Engine
	Hub    *game.Hub
	Audit  AuditSource
	DB     database.Service
	Cache  cache.Service
}

type FiberServer struct {
	*fiber.App

	engine *game.Engine
	hub    *game.Hub
	audit  AuditSource
	db     database.Service
	cache  cache.Service
}

func New(deps Deps) *FiberServer {
	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "flipzone",
			AppName:       "flipzone",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  3 * time.Minute, // flips wait for ledger confirmation
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		engine: deps.Engine,
		hub:    deps.Hub,
		audit:  deps.Audit,
		db:     deps.DB,
		cache:  deps.Cache,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go server.hub.Run()

	return server
}

// Shutdown stops the hub and closes the stores.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	s.hub.Stop()

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return s.App.Shutdown()
}
