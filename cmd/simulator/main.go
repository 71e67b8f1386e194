package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Dacoband/stream-cart-live-session/internal/config"
	"github.com/Dacoband/stream-cart-live-session/internal/sim"
	"github.com/Dacoband/stream-cart-live-session/internal/sim/store"
	"github.com/Dacoband/stream-cart-live-session/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Component: "simulator"})
	logger := log.L()

	var viewers store.ViewerStore
	switch cfg.Sim.ViewerStore {
	case "redis":
		rs, err := store.NewRedisStore(store.RedisConfig{
			Address:   cfg.Sim.Redis.Address,
			Password:  cfg.Sim.Redis.Password,
			DB:        cfg.Sim.Redis.DB,
			KeyPrefix: cfg.Sim.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis viewer store")
		}
		defer rs.Close()
		viewers = rs
		logger.Info().Str("address", cfg.Sim.Redis.Address).Msg("using redis viewer store")
	default:
		viewers = store.NewMemoryStore()
		logger.Info().Msg("using in-memory viewer store")
	}

	history, err := sim.NewHistoryStore(cfg.Sim.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}
	logger.Info().Str("path", cfg.Sim.DBPath).Msg("history store ready")

	registry := sim.NewRegistry()
	issuer := sim.NewCredentialIssuer(cfg.Sim.CredentialSecret, cfg.Sim.CredentialTTL)

	hub := sim.NewHub(registry, history, viewers, cfg.Sim.DuplicateEvery)
	go hub.Run()
	if cfg.Sim.DuplicateEvery > 0 {
		logger.Info().Int("duplicate_every", cfg.Sim.DuplicateEvery).Msg("chat duplication enabled")
	}

	wsCfg := sim.WSConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}
	srv := sim.NewServer(registry, history, hub, issuer, wsCfg)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	srv.RegisterRoutes(engine)

	addr := fmt.Sprintf("%s:%d", cfg.Sim.Host, cfg.Sim.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("address", addr).Msg("simulator listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down simulator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("simulator stopped")
}
