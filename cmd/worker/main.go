package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/cache"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/config"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/database"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubbing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubclient"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/queue"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/tracing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/webhook"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
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
	logger = logger.WithField("service", "worker")

	closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)

	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisCache.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		logger.Fatalf("Failed to set up dead letter queue: %v", err)
	}

	remote := dubclient.New(cfg.Dubbing)
	orchestrator := dubbing.NewOrchestrator(repo, remote, q, dubbing.Options{
		DuplicatePolicy:   cfg.Dubbing.DuplicatePolicy,
		ProcessingTimeout: cfg.Dubbing.ProcessingTimeout,
		CallbackURL:       cfg.Dubbing.CallbackURL,
	}, logger)

	poller := dubbing.NewPoller(orchestrator, repo, remote, dubbing.PollerOptions{
		Interval:    cfg.Dubbing.PollInterval,
		Timeout:     cfg.Dubbing.PollTimeout,
		BatchSize:   cfg.Dubbing.PollBatchSize,
		Concurrency: cfg.Dubbing.PollConcurrency,
	}, logger)

	handler := &eventHandler{
		jobs:     orchestrator,
		tracks:   cache.NewCachedDubTracks(redisCache, repo, cfg.Playback.CatalogCacheTTL, logger),
		poller:   poller,
		delivery: webhook.NewService(cfg.Dubbing.CallbackSecret, cfg.Dubbing.RequestTimeout, logger),
		timeout:  cfg.Dubbing.RequestTimeout,
		logger:   logger,
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	monitor := monitoring.NewMonitor(repo, q, monitoring.Thresholds{}, logger)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		metricsServer.AddCheck("database", db.Health)
		metricsServer.AddCheck("redis", redisCache.Ping)
		metricsServer.AddCheck("backlog", monitor.Check)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
	}

	if err := q.ConsumeDubEvents(ctx, func(event *models.DubJobEvent) error {
		return handler.handle(ctx, event)
	}); err != nil {
		logger.Fatalf("Failed to start consuming: %v", err)
	}

	go runExpiry(ctx, redisCache, orchestrator, time.Minute, logger)
	go monitor.Run(ctx, 30*time.Second)

	logger.Info("Worker started, polling dubbing service...")
	poller.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("Worker stopped")
}
