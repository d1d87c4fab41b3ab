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
	"github.com/lold2424/LessURL-Service/internal/model"
	"github.com/lold2424/LessURL-Service/internal/observability"
	"github.com/lold2424/LessURL-Service/internal/queue"
	"github.com/lold2424/LessURL-Service/internal/repository"
	"github.com/lold2424/LessURL-Service/internal/service"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serviceName := cfg.Observability.ServiceName + "-analytics-worker"

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Observability.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		slog.Error("failed to set up observability", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := obs.Logger

	db, err := infra.NewPostgresPool(ctx, cfg.Database.ConnectionString(), infra.WithMaxConns(int32(cfg.Broker.Prefetch)))
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	// Snapshot invalidation is skipped when the cache is down; snapshots expire on their own
	var snapshots service.SnapshotStore
	if cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString()); err != nil {
		logger.Warn("cache unavailable, stats snapshots will not be invalidated", slog.String("error", err.Error()))
	} else {
		defer cache.Close()
		snapshots = repository.NewSnapshotCache(cache, cfg.Cache.SnapshotTTL)
	}

	conn, err := infra.NewBrokerConnection(cfg.Broker.ConnectionString(), serviceName)
	if err != nil {
		logger.Error("failed to connect to broker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	recorder := service.NewClickRecorder(repository.NewClickRepository(db), snapshots, logger)
	consumer := queue.NewConsumer(conn, cfg.Broker.Queue, cfg.Broker.Prefetch, logger, queue.WithMaxLength(cfg.Broker.MaxLength))

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerMetricsPort,
		Handler:           obs.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Run(gctx, func(ctx context.Context, e *model.ClickEvent) error {
			return handleClick(ctx, recorder, e)
		})
	})
	g.Go(func() error {
		logger.Info("metrics endpoint listening", slog.String("port", cfg.Server.WorkerMetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("analytics worker stopped", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(shutdownCtx)
	logger.Info("analytics worker exited")
}

// handleClick records one queued event. Events for unknown links will never
// succeed and are dropped instead of requeued.
func handleClick(ctx context.Context, recorder *service.ClickRecorder, e *model.ClickEvent) error {
	if err := recorder.Record(ctx, e); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return queue.Permanent(err)
		}
		return err
	}
	return nil
}
