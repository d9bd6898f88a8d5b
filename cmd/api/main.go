package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/cache"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/catalog"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/config"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/database"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubbing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubclient"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/manifest"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/middleware"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/playback"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/queue"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/storage"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/tracing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/webhook"
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
	logger = logger.WithField("service", "api")

	closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer closer.Close()

	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatalf("Failed to apply schema: %v", err)
	}

	repo := database.NewRepository(db)

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
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	orchestrator := dubbing.NewOrchestrator(repo, dubclient.New(cfg.Dubbing), q, dubbing.Options{
		DuplicatePolicy:   cfg.Dubbing.DuplicatePolicy,
		ProcessingTimeout: cfg.Dubbing.ProcessingTimeout,
		CallbackURL:       cfg.Dubbing.CallbackURL,
	}, logger)

	dubTracks := cache.NewCachedDubTracks(redisCache, repo, cfg.Playback.CatalogCacheTTL, logger)
	builder := catalog.NewBuilder(dubTracks, stor, cfg.Playback.OriginLabel, cfg.Playback.FallbackLanguages, logger)

	sessions := playback.NewManager(playback.Deps{
		Engines:     playback.NewEngineFactory(manifest.NewFetcher(cfg.Playback.ManifestTimeout, logger)),
		Locator:     stor,
		Catalog:     builder,
		Preferences: redisCache,
		Options: playback.ControllerOptions{
			MaxManifestRetries: cfg.Playback.MaxManifestRetries,
			ManifestTimeout:    cfg.Playback.ManifestTimeout,
			RetryBackoff:       cfg.Playback.RetryBackoff,
			PreferenceTTL:      cfg.Playback.PreferenceTTL,
		},
		Logger: logger,
	}, cfg.Playback.SessionIdleTTL)
	defer sessions.CloseAll()

	api := &API{
		dubbing:  orchestrator,
		sessions: sessions,
		catalog:  builder,
		sources:  stor,
		verifier: webhook.NewVerifier(cfg.Dubbing.CallbackSecret),
		logger:   logger,
		health: map[string]func(context.Context) error{
			"database": db.Health,
			"redis":    redisCache.Ping,
			"storage":  stor.Ping,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx, 10*time.Minute, time.Hour)
	go sessions.RunSweeper(ctx, time.Minute)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		for name, check := range api.health {
			metricsServer.AddCheck(name, check)
		}
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.ErrorWithErr("Metrics server failed", err)
			}
		}()
	}

	router := setupRouter(api, limiter, logger)

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
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr("Server forced to shutdown", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("Server stopped")
}
