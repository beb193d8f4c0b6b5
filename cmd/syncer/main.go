package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"news_syncer/internal/config"
	"news_syncer/internal/domain"
	"news_syncer/internal/extractor"
	"news_syncer/internal/extractor/facebook"
	"news_syncer/internal/extractor/rss"
	"news_syncer/internal/limiter"
	"news_syncer/internal/publisher"
	"news_syncer/internal/scheduler"
	"news_syncer/internal/service"
	"news_syncer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single pass and exit")
	sourceType := flag.String("type", "", "restrict the pass to one source type (rss or facebook)")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	var typeFilter *domain.SourceType
	if *sourceType != "" {
		t, err := domain.ParseSourceType(*sourceType)
		if err != nil {
			logger.Error("invalid source type", "error", err)
			os.Exit(1)
		}
		typeFilter = &t
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	sourceStore := postgres.NewSourceStore(db)
	contentStore := postgres.NewContentStore(db)
	stateStore := postgres.NewParsingStateStore(db)
	runLogStore := postgres.NewRunLogStore(db)
	txManager := postgres.NewTransactionManager(db)

	extractors := extractor.NewRegistry()
	extractors.Register(domain.SourceTypeRSS, rss.New(rss.Config{
		Timeout:   cfg.RSS.Timeout,
		UserAgent: cfg.RSS.UserAgent,
		MaxItems:  cfg.RSS.MaxItems,
	}, logger))
	extractors.Register(domain.SourceTypeFacebook, facebook.New(facebook.Config{
		GraphURL:    cfg.Facebook.GraphURL,
		AccessToken: cfg.Facebook.AccessToken,
		PageSize:    cfg.Facebook.PageSize,
		MaxPages:    cfg.Facebook.MaxPages,
		HoursBack:   cfg.Facebook.HoursBack,
		Timeout:     cfg.Facebook.Timeout,
	}, logger))

	lim := limiter.New(limiter.Config{
		MaxCallsPerPass: cfg.Sync.MaxCallsPerPass,
		Types: map[domain.SourceType]limiter.TypePolicy{
			domain.SourceTypeRSS:      {MinInterval: cfg.Sync.RSSMinInterval},
			domain.SourceTypeFacebook: {MinInterval: cfg.Sync.FacebookMinInterval},
		},
		Retry: limiter.RetryPolicy{
			MaxAttempts:    cfg.Sync.Retry.MaxAttempts,
			InitialBackoff: cfg.Sync.Retry.InitialBackoff,
			MaxBackoff:     cfg.Sync.Retry.MaxBackoff,
			Jitter:         cfg.Sync.Retry.Jitter,
		},
	}, logger)

	syncService := service.NewSyncService(
		sourceStore,
		contentStore,
		stateStore,
		runLogStore,
		txManager,
		rabbitMQ,
		extractors,
		lim,
		logger,
		cfg.Sync,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *once {
		passCtx, passCancel := context.WithTimeout(ctx, cfg.Sync.PassTimeout)
		defer passCancel()

		summary, err := syncService.RunPass(passCtx, typeFilter)
		if err != nil {
			logger.Error("sync pass failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("attempted=%d succeeded=%d failed=%d skipped=%d inserted=%d duration=%s\n",
			summary.SourcesAttempted,
			summary.SourcesSucceeded,
			summary.SourcesFailed,
			summary.SourcesSkipped,
			summary.ItemsInserted,
			summary.FinishedAt.Sub(summary.StartedAt),
		)
		return
	}

	logger.Info("starting news syncer",
		"interval", cfg.Sync.Interval,
		"max_calls_per_pass", cfg.Sync.MaxCallsPerPass,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.PassTimeout, typeFilter, logger)
	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
