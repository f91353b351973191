package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"flipzone/internal/cache"
	"flipzone/internal/config"
	"flipzone/internal/database"
	"flipzone/internal/game"
	"flipzone/internal/ledger"
	"flipzone/internal/server"
)

func gracefulShutdown(srv *server.FiberServer, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("[SERVER] Shutting down gracefully, press Ctrl+C again to force")
	stop()

	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] Forced to shutdown with error: %v", err)
	}

	done <- true
}

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := ledger.DialEth(ctx, ledger.EthConfig{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		PrivateKeyHex:   cfg.PlayerPrivateKey,
		ChainID:         cfg.ChainID,
		GasLimit:        cfg.GasLimit,
	})
	if err != nil {
		log.Fatalf("[SERVER] Ledger unavailable: %v", err)
	}
	defer backend.Close()

	gateway := ledger.NewGateway(backend, ledger.Options{
		ChainID:          cfg.ChainID,
		ConfirmTimeout:   cfg.ConfirmTimeout,
		RecoveryAttempts: cfg.RecoveryAttempts,
		RecoveryBackoff:  cfg.RecoveryBackoff,
	})

	hub := game.NewHub()
	deps := server.Deps{Hub: hub}
	opts := []game.Option{game.WithNotifier(hub)}

	if redis := cache.New(); redis != nil {
		store := cache.NewSessionStore(redis.GetClient(), backend.Player().Hex(), cfg.SessionTTL)
		opts = append(opts, game.WithStore(store))
		deps.Cache = redis
	}

	if cfg.AuditEnabled {
		db := database.New()
		if err := database.RunMigrations(db.DB(), cfg.MigrationsPath); err != nil {
			log.Printf("[DB] Audit trail disabled: %v", err)
			db.Close()
		} else {
			recorder := database.NewRecorder(db.Pool())
			opts = append(opts, game.WithRecorder(recorder))
			deps.DB = db
			deps.Audit = recorder
		}
	}

	engine := game.NewEngine(gateway, gateway, game.RulesFromConfig(cfg), opts...)
	if session, err := engine.Restore(ctx); err != nil {
		log.Printf("[SERVER] Could not restore previous session: %v", err)
	} else if session.State == game.StatePlaying {
		log.Printf("[SERVER] Resumed session %s at round %d", session.SessionID, session.RoundIndex)
	}
	deps.Engine = engine

	srv := server.New(deps)
	srv.RegisterFiberRoutes()

	done := make(chan bool, 1)

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			panic(fmt.Sprintf("http server error: %s", err))
		}
	}()

	go gracefulShutdown(srv, done)

	<-done
	log.Println("[SERVER] Graceful shutdown complete.")
}
