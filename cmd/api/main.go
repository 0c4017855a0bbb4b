package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/carrydesk/carry-desk/internal/api/http"
	"github.com/carrydesk/carry-desk/internal/api/http/handlers"
	"github.com/carrydesk/carry-desk/internal/auth"
	"github.com/carrydesk/carry-desk/internal/config"
	"github.com/carrydesk/carry-desk/internal/observability"
	"github.com/carrydesk/carry-desk/internal/persistence"
	"github.com/carrydesk/carry-desk/internal/repository"
	"github.com/carrydesk/carry-desk/internal/repository/memory"
	"github.com/carrydesk/carry-desk/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, "transcript-api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var transcripts repository.TranscriptRepository
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		transcripts = repository.NewTranscriptRepository(pg.PoolHandle())
	} else {
		transcripts = memory.NewTranscriptRepository()
	}

	metrics := observability.NewMetrics("transcript_api")
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.ServiceTokenTTL())
	transcriptService := service.NewTranscriptService(service.TranscriptDependencies{
		Repo:   transcripts,
		Logger: logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(transcripts, nil),
		Transcripts:    handlers.NewTranscriptsHandler(transcriptService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("transcript api listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
