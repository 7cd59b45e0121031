package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wichananm65/heladeria-backend/internal/admin"
	"github.com/wichananm65/heladeria-backend/internal/config"
	"github.com/wichananm65/heladeria-backend/internal/feed"
	"github.com/wichananm65/heladeria-backend/internal/pubsub"
)

func main() {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := pubsub.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer client.Close()

	hub := feed.NewHub()
	go hub.Run()
	go feed.Relay(ctx, client, hub, 2*time.Second)

	// only ParseToken is used, so no admin credentials are needed here
	tokens := admin.NewService(cfg.AdminEmail, "", []byte(cfg.JWTSecret))
	router := feed.NewRouter(hub, tokens, feed.NewRateLimiter(cfg.FeedRatePerMinute))

	server := &http.Server{
		Addr:              cfg.FeedAddr,
		Handler:           feed.NewHandler(router, cfg.CORSOrigins),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(hub.Stop)

	go func() {
		log.Printf("feed listening on %s", cfg.FeedAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received, shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Println("feed stopped")
}
