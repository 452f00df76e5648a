package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/playludo/backend/internal/api"
	"github.com/playludo/backend/internal/config"
	"github.com/playludo/backend/internal/game"
	"github.com/playludo/backend/internal/history"
	"github.com/playludo/backend/internal/migrations"
	"github.com/playludo/backend/internal/store"
	"github.com/playludo/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// User store: Redis when reachable, in-process memory otherwise. The
	// failover keeps serving through a Redis outage.
	rdb := store.NewRedis(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDatabase)
	probe, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if rdb.Connected(probe) {
		log.Printf("[STORE] Redis connected at %s:%s", cfg.RedisHost, cfg.RedisPort)
	} else {
		log.Printf("[STORE] Redis unreachable at %s:%s, serving from memory until it returns", cfg.RedisHost, cfg.RedisPort)
	}
	cancel()
	userStore := store.NewFailover(rdb, store.NewMemory())

	// Optional game-history archive
	if os.Getenv("MIGRATE_ON_START") == "true" && cfg.DatabaseURL != "" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}
	hist, err := history.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to history database: %v", err)
	}
	if hist != nil {
		defer hist.Close()
		log.Println("[HISTORY] Game history archive enabled")
	} else {
		log.Println("[HISTORY] DATABASE_URL not set, game history archive disabled")
	}

	rooms := game.NewRegistry()
	hub := ws.NewHub()
	dispatcher := ws.NewDispatcher(cfg, userStore, rooms, hub, hist)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, cfg, userStore, rooms, hub, dispatcher, hist)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Starting PlayLudo server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
