// Package main is the entry point for the DueWatch notification engine.
//
// It loads configuration, connects the pgx pool, wires the summary builder,
// queue, alert engine, delivery worker, and scheduler, and serves the
// operator HTTP API. Graceful shutdown is handled via OS signal
// interception (SIGINT, SIGTERM): the scheduler drains in-flight jobs and
// the HTTP server finishes open requests before the pool closes.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"duewatch/internal/alerts"
	"duewatch/internal/api"
	"duewatch/internal/channels"
	"duewatch/internal/config"
	"duewatch/internal/db"
	"duewatch/internal/observe"
	"duewatch/internal/queue"
	"duewatch/internal/scheduler"
	"duewatch/internal/summary"
	"duewatch/internal/types"
	"duewatch/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	slogger := newLogger(cfg.LogLevel)
	logger := types.NewSlogLogger(slogger)
	logger.Info("duewatch engine starting",
		"environment", cfg.Environment,
		"timezone", cfg.Timezone,
		"port", cfg.Server.Port,
	)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	clock := types.RealClock{}
	queueRepo := db.NewQueueRepository(pool)
	stateRepo := db.NewAlertStateRepository(pool)
	paymentRepo := db.NewPaymentRepository(pool)
	settingsRepo := db.NewSettingsRepository(pool)
	txManager := db.NewTxManager(pool)

	// Metrics.
	var metrics interface {
		worker.DeliveryMetrics
		alerts.FaultRecorder
	}
	if cfg.Metrics.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Metrics.Region))
		if err != nil {
			return fmt.Errorf("loading aws config: %w", err)
		}
		metrics = observe.NewMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Metrics.Namespace, logger)
	} else {
		metrics = observe.NopMetrics{}
	}

	// Delivery channels.
	telegramSender, err := channels.NewTelegramSender(cfg.Telegram.BotToken.Unmask(),
		logger.With("channel", "telegram"))
	if err != nil {
		return fmt.Errorf("initializing telegram sender: %w", err)
	}
	emailSender := channels.NewEmailSender(
		&http.Client{Timeout: cfg.Email.SendTimeout},
		channels.EmailSenderConfig{
			APIKey:      cfg.Email.APIKey.Unmask(),
			BaseURL:     cfg.Email.BaseURL,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		},
		logger.With("channel", "email"),
	)
	registry := channels.NewRegistry(telegramSender, emailSender)

	// Worker.
	deliveryWorker := worker.New(queueRepo, settingsRepo, registry, metrics, clock,
		logger.With("component", "worker"),
		worker.Config{
			SystemDestinations: cfg.Alerts.SystemDestinations(),
			BatchSize:          cfg.Worker.BatchSize,
			SendTimeout:        cfg.Worker.SendTimeout,
			MaxRetries:         cfg.Worker.MaxRetries,
		},
	)

	// Alert engine.
	evaluator := alerts.NewEvaluator(queueRepo, metrics, clock, logger.With("component", "evaluator"))
	cycleRunner := alerts.NewDBCycleRunner(txManager, cfg.Alerts.AlertChannel(), logger)
	reconciler := alerts.NewReconciler(evaluator, cycleRunner, clock, logger.With("component", "alerts"))

	// Summary pipeline and scheduler.
	builder := summary.NewBuilder(paymentRepo, loc, clock, logger.With("component", "summary"))
	enqueuer := queue.NewEnqueuer(queueRepo, logger.With("component", "queue"))
	dailyJob := scheduler.NewDailySummaryJob(builder, settingsRepo, enqueuer, loc, clock,
		logger.With("component", "scheduler"))
	sched := scheduler.New(loc, dailyJob, reconciler, deliveryWorker, settingsRepo,
		logger.With("component", "scheduler"),
		scheduler.WithWorkerInterval(cfg.Worker.Interval))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Operator HTTP API.
	handler := api.NewHandler(queueRepo, deliveryWorker, reconciler, stateRepo,
		settingsRepo, sched, logger.With("component", "api"))
	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: api.NewRouter(handler),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// newLogger creates a structured slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
