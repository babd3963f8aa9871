package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sai034/css-video-editor/internal/cache"
	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/database"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/metrics"
	"github.com/sai034/css-video-editor/internal/queue"
	"github.com/sai034/css-video-editor/internal/scheduler"
	"github.com/sai034/css-video-editor/internal/service"
	"github.com/sai034/css-video-editor/internal/storage"
	"github.com/sai034/css-video-editor/internal/tracing"
	"github.com/sai034/css-video-editor/internal/webhook"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	workerID := uuid.New().String()
	baseLogger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger := baseLogger.WithWorkerID(workerID)

	// Initialize tracing
	_, closer, err := tracing.Init(cfg.Tracing.Enabled, cfg.Tracing.ServiceName+"-worker", cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics endpoint
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger.Component("metrics"))
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server stopped", err)
			}
		}()
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db, logger)

	// Initialize cache
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisCache.Close()

	// Initialize storage
	stor, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	fetcher := storage.NewFetcher(stor, cfg.Storage.FetchTimeout, logger.Component("fetch"))

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger.Component("queue"))
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := os.MkdirAll(cfg.Render.TempDir, 0755); err != nil {
		logger.Fatalf("Failed to create temp directory: %v", err)
	}

	pipeline, err := service.NewPipeline(cfg.Render, fetcher, logger.Component("render"))
	if err != nil {
		logger.Fatalf("Failed to initialize render pipeline: %v", err)
	}
	defer pipeline.Close()

	// Webhook deliveries, with failed ones retried in the background
	webhooks := webhook.NewService(repo, cfg.Webhook.Secret, cfg.Webhook.Timeout, cfg.Webhook.MaxRetries, logger.Component("webhook"))
	go webhooks.RetryWorker(ctx, time.Minute)

	worker := service.NewWorker(repo, redisCache, stor, fetcher, webhooks, pipeline, service.WorkerOptions{
		WorkerID: workerID,
		TempDir:  cfg.Render.TempDir,
		Timeout:  cfg.Render.Timeout,
		JobTTL:   cfg.Redis.JobTTL,
	}, logger)

	go reportQueueDepth(ctx, q, logger)

	// Requeue jobs abandoned by crashed workers or lost before reaching the queue
	reaper := scheduler.NewReaper(repo, q, scheduler.Options{
		Interval:     time.Minute,
		StaleAfter:   cfg.Render.Timeout + 2*time.Minute,
		PendingAfter: cfg.Render.Timeout,
	}, nil, logger.Component("scheduler"))
	go reaper.Run(ctx)

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Start consuming jobs
	if err := q.ConsumeJobs(ctx, cfg.Render.WorkerCount, worker.ProcessJob); err != nil {
		logger.Fatalf("Failed to consume jobs: %v", err)
	}
	logger.Infof("Worker started with %d render slots, waiting for jobs...", cfg.Render.WorkerCount)

	// Wait for shutdown
	<-ctx.Done()
	q.Wait()
	webhooks.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.ErrorWithErr("Failed to stop metrics server", err)
		}
	}

	logger.Info("Worker stopped")
}

// reportQueueDepth publishes the render queue and DLQ depths
func reportQueueDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth, err := q.GetQueueDepth()
			if err != nil {
				logger.ErrorWithErr("Failed to read queue depth", err)
				continue
			}
			metrics.UpdateQueueDepth(depth)

			if dlq, err := q.GetDLQDepth(); err == nil && dlq > 0 {
				logger.Warn(fmt.Sprintf("%d render jobs in the dead letter queue", dlq))
			}
		}
	}
}
