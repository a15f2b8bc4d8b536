package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/gads-reporter/internal/config"
	"github.com/ignite/gads-reporter/internal/diaglog"
	"github.com/ignite/gads-reporter/internal/kvstore"
	"github.com/ignite/gads-reporter/internal/pkg/distlock"
	"github.com/ignite/gads-reporter/internal/queue"
	"github.com/ignite/gads-reporter/internal/reporter"
	"github.com/ignite/gads-reporter/internal/settings"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting conversion report worker...")

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
	log.Println("Connected to database")

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

	// The worker never resets failed jobs; that is the settings-save path.
	google := reporter.NewGoogleAds(settingsStore, flags, tokens, cfg.GoogleAds, dlog, nil, nil)
	registry := reporter.NewRegistry(google)

	jobs := queue.NewStore(db, cfg.Queue.MaxAttempts)
	trigger := queue.NewRedisTrigger(redisClient)
	lock := distlock.NewLock(redisClient, db, "report-queue-drain", 2*time.Minute)

	scheduler := queue.NewScheduler(jobs, registry, trigger, lock, queue.SchedulerConfig{
		PollInterval: cfg.Queue.PollInterval(),
		BatchSize:    cfg.Queue.BatchSize,
	})

	ctx, cancelRun := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancelRun()
	}()

	scheduler.Run(ctx)
}
