// Command worker drains the consumption recalculation queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/taller/internal/cache"
	"github.com/Simplici0/taller/internal/config"
	"github.com/Simplici0/taller/internal/consumption"
	"github.com/Simplici0/taller/internal/db"
	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/jobs"
	"github.com/Simplici0/taller/internal/migrations"
	"github.com/Simplici0/taller/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogFormat, os.Stdout).With(slog.String("component", "worker"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.ShouldMigrate() {
		if err := migrations.Up(database); err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}
	}
	schemaVersion, err := migrations.Version(database)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.DBPath), slog.Int64("schema_version", schemaVersion))

	metrics := observability.NewMetrics()
	aggregator := consumption.NewAggregator(docstore.New(database), logger, metrics)
	job := jobs.NewConsumptionJob(aggregator, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    []jobs.TaskHandler{job.TaskHandler()},
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := cache.Healthy(r.Context(), redisClient, 2*time.Second); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker started", slog.String("redis", cfg.RedisAddr), slog.Int("concurrency", cfg.WorkerConcurrency))
		return worker.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
