package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/gads-reporter/internal/api"
	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/queue"
	"github.com/ignite/gads-reporter/internal/reporter"
	"github.com/ignite/gads-reporter/internal/settings"
	"github.com/ignite/gads-reporter/internal/storage"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	settingsStore := settings.NewPostgresStore(db)
	flags := kvstore.NewRedisStore(redisClient, "gads:flags")
	tokens := kvstore.NewRedisStore(redisClient, "gads:tokens")

	dlog := diaglog.New(cfg.DiagLog.Path, func() bool {
		s, err := settingsStore.GetAll(context.Background())
		if err != nil {
			return false
		}
		return s.LoggingEnabled()
	})

	if cfg.Archive.Enabled() {
		archiver, err := storage.NewLogArchiver(context.Background(), cfg.Archive)
		if err != nil {
			log.Printf("Log archival disabled: %v", err)
		} else {
			dlog.SetArchiver(archiver.ArchiveFunc())
			log.Printf("Log archival enabled (bucket %s)", cfg.Archive.S3Bucket)
		}
	}

	jobs := queue.NewStore(db, cfg.Queue.MaxAttempts)
	trigger := queue.NewRedisTrigger(redisClient)

	google := reporter.NewGoogleAds(settingsStore, flags, tokens, cfg.GoogleAds, dlog, jobs, trigger)

	handlers := api.NewHandlers(settingsStore, google, jobs, trigger, tokens, dlog, cfg.GoogleAds)
	server := api.NewServer(handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("Admin API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
