package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/reservoirai/reservoir/internal/config"
	"github.com/reservoirai/reservoir/internal/database"
	"github.com/reservoirai/reservoir/internal/handler"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

func main() {
	// Load .env file if exists
	godotenv.Load()

	// Load configuration
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Initialize database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Metadata cache is optional; the vector store works without it
	var cache *vectorstore.MetadataCache
	if cfg.RedisURL != "" {
		cache, err = vectorstore.NewMetadataCache(cfg.RedisURL, 15*time.Minute)
		if err != nil {
			logger.Warn("metadata cache unavailable, continuing without it", "err", err)
			cache = nil
		}
	}

	store := vectorstore.NewPgStore(db, cache)

	r, err := handler.SetupRouter(cfg, db, store, logger)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	addr := cfg.Host + ":" + cfg.Port
	logger.Info("starting server", "addr", addr, "environment", cfg.Environment)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
