// The worker runs the scheduler poller and the stuck-sending
// reconciler as a standalone process. Deployments that trigger
// delivery through the cron endpoints instead can skip this binary.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/broadcast-engine/internal/config"
	"github.com/ignite/broadcast-engine/internal/delivery"
	"github.com/ignite/broadcast-engine/internal/images"
	"github.com/ignite/broadcast-engine/internal/pkg/httpretry"
	"github.com/ignite/broadcast-engine/internal/pkg/logger"
	"github.com/ignite/broadcast-engine/internal/repository/postgres"
	"github.com/ignite/broadcast-engine/internal/storage"
	"github.com/ignite/broadcast-engine/internal/transport"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}
	lg := logger.Default()

	if cfg.Database.URL == "" {
		log.Fatal("database url is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatalf("database unreachable: %v", err)
	}
	cancelPing()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	broadcastRepo := postgres.NewBroadcastRepo(db)

	var externalizer delivery.Externalizer = images.Passthrough{}
	if cfg.Storage.Bucket != "" {
		store, err := storage.NewS3Store(context.Background(), cfg.Storage)
		if err != nil {
			log.Fatalf("failed to initialize blob storage: %v", err)
		}
		externalizer = images.NewExternalizer(store, cfg.Storage.UploadTimeout(), lg)
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("failed to initialize transport: %v", err)
	}

	executor := delivery.NewExecutor(broadcastRepo, tr, externalizer,
		cfg.Transport.FromAddress, cfg.Transport.FromName,
		cfg.Transport.TransportTimeout(), lg)
	poller := delivery.NewPoller(broadcastRepo, executor, redisClient, db, cfg.Scheduler.MaxBatch, lg)
	reconciler := delivery.NewReconciler(broadcastRepo, cfg.Scheduler.StuckGrace(), lg)

	worker := delivery.NewWorker(poller, reconciler, cfg.Scheduler.PollInterval(), lg)
	worker.Start()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	lg.Info("shutting down")
	worker.Stop()
	executor.Close()
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Provider {
	case "ses":
		return transport.NewSES(context.Background(), cfg.Transport.SES)
	case "http", "":
		client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Transport.TransportTimeout()}, 3)
		return transport.NewHTTPProvider(cfg.Transport.HTTP.BaseURL, cfg.Transport.HTTP.APIKey, client), nil
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Transport.Provider)
	}
}
