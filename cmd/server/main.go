package main

import (
	"context"
	"database/sql"
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

	"github.com/Simplici0/taller/internal/authz"
	"github.com/Simplici0/taller/internal/cache"
	"github.com/Simplici0/taller/internal/config"
	"github.com/Simplici0/taller/internal/consumption"
	"github.com/Simplici0/taller/internal/db"
	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/jobs"
	"github.com/Simplici0/taller/internal/links"
	"github.com/Simplici0/taller/internal/migrations"
	"github.com/Simplici0/taller/internal/observability"
	"github.com/Simplici0/taller/internal/projects"
	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/seed"
)

// recalcTrigger starts a consumption recalculation without waiting for it.
type recalcTrigger interface {
	TriggerRecalculation(ctx context.Context, projectID, origin string)
}

type server struct {
	auth            *authService
	db              *sql.DB
	repo            *projects.Repository
	recalc          *consumption.Aggregator
	trigger         recalcTrigger
	policy          *authz.Policy
	linkSigner      *links.Signer // nil when no link secret is configured
	metrics         *observability.Metrics
	jobsHandler     *jobs.Handler
	logger          *slog.Logger
	fallbackCompany quote.Company
	secureCookies   bool
	redisCheck      func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
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

	fallbackCompany := quote.Company{
		ID:         cfg.CompanyID,
		Name:       cfg.CompanyName,
		TaxPercent: cfg.DefaultTaxPercent,
		Currency:   cfg.Currency,
	}
	stats, err := seed.Run(database, seed.Config{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		Company:       fallbackCompany,
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	logger.Info("seed complete", slog.Int("inserts", stats.Inserts))

	var signer *links.Signer
	linkSecret := cfg.LinkSecret
	if linkSecret == "" {
		linkSecret = cfg.SessionSecret
	}
	if linkSecret == "" {
		logger.Warn("LINK_SECRET and SESSION_SECRET not set, public fitting links are disabled")
	} else {
		if cfg.LinkSecret == "" {
			logger.Warn("LINK_SECRET not set, signing fitting links with SESSION_SECRET")
		}
		signer, err = links.NewSigner(linkSecret, cfg.LinkTTL)
		if err != nil {
			return fmt.Errorf("configure fitting links: %w", err)
		}
	}

	store := docstore.New(database)
	metrics := observability.NewMetrics()
	aggregator := consumption.NewAggregator(store, logger, metrics)

	srv := &server{
		auth:   newAuthService(database, cfg.SessionSecret),
		db:     database,
		repo:   projects.NewRepository(store),
		recalc: aggregator,
		policy: authz.NewPolicy(authz.Assignments{
			Admins:     cfg.AdminEmails,
			Enterprise: cfg.EnterpriseEmails,
			Premium:    cfg.PremiumEmails,
		}),
		linkSigner:      signer,
		metrics:         metrics,
		logger:          logger,
		fallbackCompany: fallbackCompany,
		secureCookies:   !cfg.IsDev(),
	}

	var inline *jobs.Inline
	switch cfg.JobsMode {
	case config.JobsAsynq:
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		srv.redisCheck = func(ctx context.Context) error {
			return cache.Healthy(ctx, redisClient, 2*time.Second)
		}

		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		client := jobs.NewClient(redisOpts, logger)
		defer client.Close()
		inspector := asynq.NewInspector(redisOpts)
		defer inspector.Close()

		srv.trigger = client
		srv.jobsHandler = jobs.NewHandler(inspector, logger)
	default:
		inline = jobs.NewInline(aggregator, logger)
		srv.trigger = inline
		srv.jobsHandler = jobs.NewHandler(nil, logger)
	}

	httpServer := &http.Server{
		Addr: cfg.Addr(),
		Handler: srv.routes(routerOptions{
			requestTimeout: cfg.RequestTimeout,
			production:     !cfg.IsDev(),
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", httpServer.Addr), slog.String("jobs_mode", cfg.JobsMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if inline != nil {
			inline.Wait()
		}
		return err
	})
	return g.Wait()
}
