package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carvajal-autotech/quiz-service/internal/cache"
	"github.com/carvajal-autotech/quiz-service/internal/config"
	"github.com/carvajal-autotech/quiz-service/internal/handlers"
	"github.com/carvajal-autotech/quiz-service/internal/monitoring"
	"github.com/carvajal-autotech/quiz-service/internal/quiz"
	"github.com/carvajal-autotech/quiz-service/internal/repositories/postgres"
	"github.com/carvajal-autotech/quiz-service/internal/services"
	"github.com/carvajal-autotech/quiz-service/internal/storage"
	"github.com/carvajal-autotech/quiz-service/internal/utils"
	"github.com/carvajal-autotech/quiz-service/internal/validator"
	"github.com/carvajal-autotech/quiz-service/pkg"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closer := utils.NewLogger(cfg.Environment, cfg.Log)
	os.Exit(finish(logger, closer, run(cfg, logger)))
}

// finish logs a fatal run error and releases the log sink. os.Exit skips
// deferred calls, so nothing may be left for a defer to close.
func finish(logger utils.Logger, closer io.Closer, err error) int {
	if err != nil {
		logger.LogError(err, "Server stopped with error")
	}
	if cerr := closer.Close(); cerr != nil {
		slog.Error("Failed to close log file", "error", cerr)
	}
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.Slog()

	db, err := pkg.InitDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	repo := postgres.NewRepository(db)

	health := map[string]handlers.Pinger{"database": repo.Ping}

	cacheService := cache.NewMemoryCache()
	if cfg.RedisEnabled {
		client, err := pkg.NewRedisClient(ctx, cfg)
		switch {
		case err == nil:
			defer client.Close()
			cacheService = cache.NewRedisCache(client, log)
			health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		case cfg.IsProduction():
			return err
		default:
			logger.Warn("Redis unavailable, using in-memory cache", "error", err)
		}
	}

	publisher, err := cfg.Events.CreateEventPublisher(log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	provider, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var external services.ExternalVerifier
	if cfg.Auth.Provider == "casdoor" {
		external = services.NewCasdoorVerifier(cfg.Auth)
	}

	metrics := monitoring.NewMetrics()
	serviceManager := services.NewServiceManager(services.Dependencies{
		Repo:      repo,
		Cache:     cacheService,
		Publisher: publisher,
		Storage:   provider,
		Metrics:   metrics,
		Validator: validator.New(),
		Tokens:    services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL),
		External:  external,
		Engine: quiz.Config{
			TickInterval:   cfg.Quiz.TickInterval,
			AdvanceDelay:   cfg.Quiz.AdvanceDelay,
			PersistTimeout: cfg.Quiz.PersistTimeout,
		},
		RefreshInterval: cfg.AdminRefreshInterval,
		Logger:          log,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if local, ok := provider.(*storage.LocalProvider); ok {
		router.Static("/uploads", local.Root())
	}

	handlers.NewHandlerManager(serviceManager, logger, handlers.RouterOptions{
		Metrics:            metrics,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		Health:             health,
	}).SetupRoutes(router)

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go serviceManager.Refresher().Run(refreshCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting quiz service", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	cancelRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	// Live sessions flush pending answers and progress before the store goes away.
	if err := serviceManager.Quiz().Shutdown(shutdownCtx); err != nil {
		logger.Warn("Some quiz sessions did not flush", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Server exiting")
	return shutdownErr
}
