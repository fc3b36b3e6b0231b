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
	"go.uber.org/zap"

	"github.com/socialpulse/connector/internal/api"
	"github.com/socialpulse/connector/internal/cache"
	"github.com/socialpulse/connector/internal/crypto"
	"github.com/socialpulse/connector/internal/db"
	"github.com/socialpulse/connector/internal/meta"
	"github.com/socialpulse/connector/internal/sync"
	"github.com/socialpulse/connector/pkg/config"
	"github.com/socialpulse/connector/pkg/logging"
	"github.com/socialpulse/connector/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting Meta Connector API Server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Connect to database and migrate schema
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to Redis (optional)
	var redisCache *cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisCache.Close()
	}

	// Token encryption
	codec, err := crypto.NewCodec(cfg.Crypto.KeyHex)
	if err != nil {
		logger.Fatal("Failed to initialize token encryption", zap.Error(err))
	}

	// Graph API client
	graph := meta.New(&cfg.Meta, cfg.Sync.PageSize)

	// Repositories
	repo := db.NewRepository(database.DB)
	users := db.NewUserRepository(repo)
	accounts := db.NewAccountRepository(repo)
	posts := db.NewPostRepository(repo)
	metrics := db.NewMetricRepository(repo)

	// Backfill orchestrator. The run guard needs Redis; without it
	// concurrent syncs for the same account are not coalesced.
	var guard sync.RunGuard
	if redisCache != nil {
		guard = redisCache
	}
	backfill := sync.NewBackfill(&cfg.Sync, accounts, posts, metrics, graph, codec, guard)

	// OAuth state signing reuses the token encryption key
	states, err := api.NewStateCodec(cfg.Crypto.KeyHex)
	if err != nil {
		logger.Fatal("Failed to initialize state codec", zap.Error(err))
	}

	connector := api.NewConnectorHandler(graph, users, accounts, codec, states, backfill, cfg.Meta.SuccessURL)
	read := api.NewReadHandler(accounts, posts, metrics)
	router := api.NewRouter(connector, read, database, redisCache)

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetupRoutes(engine)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
