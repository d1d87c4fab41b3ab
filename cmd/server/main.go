package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lold2424/LessURL-Service/internal/config"
	"github.com/lold2424/LessURL-Service/internal/infra"
	"github.com/lold2424/LessURL-Service/internal/observability"
	"github.com/lold2424/LessURL-Service/internal/queue"
	"github.com/lold2424/LessURL-Service/internal/server"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		slog.Error("failed to set up observability", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := obs.Logger

	if err := infra.RunMigrations(cfg.Database.MigrationsPath, cfg.Database.ConnectionString()); err != nil {
		logger.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := infra.NewPostgresPool(ctx, cfg.Database.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
	if err != nil {
		logger.Error("failed to connect to cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cache.Close()
	logger.Info("cache connected")

	// The broker is optional: without it clicks are recorded in-process
	var publisher *queue.Publisher
	if conn, err := infra.NewBrokerConnection(cfg.Broker.ConnectionString(), cfg.Observability.ServiceName); err != nil {
		logger.Warn("broker unavailable, recording clicks synchronously", slog.String("error", err.Error()))
	} else {
		defer conn.Close()
		publisher, err = queue.NewPublisher(conn, cfg.Broker.Queue, queue.WithMaxLength(cfg.Broker.MaxLength))
		if err != nil {
			logger.Warn("failed to open click publisher, recording clicks synchronously", slog.String("error", err.Error()))
			publisher = nil
		} else {
			defer publisher.Close()
			logger.Info("broker connected", slog.String("queue", cfg.Broker.Queue))
		}
	}

	srv := server.NewServer(cfg, db, cache, publisher, obs)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.String("error", err.Error()))
	}
	obs.Shutdown(shutdownCtx)

	logger.Info("server exited gracefully")
}
