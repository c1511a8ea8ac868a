// Package main is the entrypoint for the matchscope API server.
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

	"github.com/kiranshivaraju/matchscope/internal/api"
	"github.com/kiranshivaraju/matchscope/internal/api/handler"
	mw "github.com/kiranshivaraju/matchscope/internal/api/middleware"
	"github.com/kiranshivaraju/matchscope/internal/cache"
	"github.com/kiranshivaraju/matchscope/internal/config"
	"github.com/kiranshivaraju/matchscope/internal/engine"
	"github.com/kiranshivaraju/matchscope/internal/events"
	"github.com/kiranshivaraju/matchscope/internal/fixtures"
	"github.com/kiranshivaraju/matchscope/internal/jobs"
	"github.com/kiranshivaraju/matchscope/internal/metrics"
	"github.com/kiranshivaraju/matchscope/internal/store"
	"github.com/kiranshivaraju/matchscope/internal/verification"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"batch_concurrency", cfg.Jobs.BatchConcurrency,
		"duplicate_policy", cfg.Jobs.DuplicatePolicy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Event publisher, optional
	publisher, closePublisher, err := newPublisher(cfg.NATS)
	if err != nil {
		return err
	}
	defer closePublisher()

	// 6. Job orchestration
	pgStore := store.NewPostgresStore(pool)
	m := metrics.New()
	engineClient := engine.NewHTTPClient(cfg.Engine.BaseURL, cfg.Engine.APIKey, cfg.Engine.Timeout)
	fixturesClient := fixtures.NewHTTPClient(cfg.Fixtures.BaseURL, cfg.Fixtures.APIKey, cfg.Fixtures.Timeout)

	jobClient := jobs.NewClient(engineClient, pgStore, redisCache, cfg.Jobs.DuplicatePolicy, m)
	poller := jobs.NewPoller(jobClient, cfg.Jobs.PollInterval, m)
	scheduler := jobs.NewScheduler(jobClient, poller, cfg.Jobs.BatchConcurrency, m)
	reclaimer := jobs.NewReclaimer(pgStore, m)
	tracker := jobs.NewTracker(poller, publisher, cfg.Jobs.SettleDelay)
	defer tracker.Stop()

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go scheduler.Run(schedCtx)

	// 7. Verification
	discovery := verification.NewDiscovery(pgStore, fixturesClient, redisCache,
		cfg.Fixtures.FetchConcurrency, cfg.Verification.PostAnalysisLookback)
	runner := verification.NewRunner(engineClient, cfg.Verification.ChunkSize, cfg.Verification.Pacing, m)

	if cfg.Verification.Cron != "" {
		sweeper, err := verification.NewSweeper(discovery, runner, cfg.Verification.Cron, cfg.Verification.CronWindow)
		if err != nil {
			return fmt.Errorf("create verification sweeper: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
		slog.Info("verification sweep scheduled", "cron", cfg.Verification.Cron)
	}

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:  handler.NewHealthHandler(pgStore, redisCache),
		MetricsHandler: m.Handler(),

		SubmitJobHandler: handler.NewSubmitJobHandler(jobClient, tracker),
		GetJobHandler:    handler.NewGetJobHandler(jobClient),

		EnqueueBatchHandler: handler.NewEnqueueBatchHandler(scheduler),
		BatchStatusHandler:  handler.NewBatchStatusHandler(scheduler),
		CancelBatchHandler:  handler.NewCancelBatchHandler(scheduler),

		VerificationCandidatesHandler: handler.NewVerificationCandidatesHandler(discovery),
		RunVerificationHandler:        handler.NewRunVerificationHandler(discovery, runner),
		PostAnalysisCandidatesHandler: handler.NewPostAnalysisCandidatesHandler(discovery),
		RunPostAnalysisHandler:        handler.NewRunPostAnalysisHandler(discovery, runner),

		ReclaimHandler:      handler.NewReclaimHandler(reclaimer),
		ReclaimStaleHandler: handler.NewReclaimStaleHandler(reclaimer),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	status := scheduler.Status()
	slog.Info("server stopped gracefully",
		"batch_completed", status.Completed,
		"batch_failed", status.Failed,
		"batch_abandoned", status.Abandoned,
		"batch_still_queued", status.QueueDepth,
	)
	return nil
}

// newPublisher connects to NATS when a URL is configured and falls back to
// dropping events otherwise.
func newPublisher(cfg config.NATSConfig) (events.Publisher, func(), error) {
	if cfg.URL == "" {
		slog.Info("nats not configured, job events disabled")
		return events.Nop{}, func() {}, nil
	}
	nc, err := events.Connect(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("nats connected", "url", nc.ConnectedUrl())
	return events.NewNATSPublisher(nc), nc.Close, nil
}
