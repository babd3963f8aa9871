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

	"github.com/sai034/css-video-editor/internal/cache"
	"github.com/sai034/css-video-editor/internal/config"
	"github.com/sai034/css-video-editor/internal/database"
	"github.com/sai034/css-video-editor/internal/logging"
	"github.com/sai034/css-video-editor/internal/middleware"
	"github.com/sai034/css-video-editor/internal/queue"
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

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize tracing
	_, closer, err := tracing.Init(cfg.Tracing.Enabled, cfg.Tracing.ServiceName+"-api", cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger.Component("queue"))
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	webhooks := webhook.NewService(repo, cfg.Webhook.Secret, cfg.Webhook.Timeout, cfg.Webhook.MaxRetries, logger.Component("webhook"))
	jobs := service.NewJobs(repo, redisCache, q, stor, webhooks, cfg.Redis.JobTTL, logger)

	// Per-client limiter, with idle clients evicted
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.Burst)
	go limiter.Cleanup(ctx, time.Minute, 10*time.Minute)

	api := &API{
		renders: jobs,
		checks: map[string]HealthCheck{
			"database": db.Health,
			"redis":    redisCache.Ping,
		},
		logger: logger,
	}

	router := setupRouter(api, routerOptions{
		Server:      cfg.Server,
		Limiter:     limiter,
		Counter:     redisCache,
		SubmitLimit: cfg.Server.SubmitLimit,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Cancel context for background workers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}

	// Cancellation callbacks sent by the API finish before exit
	webhooks.Wait()

	logger.Info("Server stopped")
}
