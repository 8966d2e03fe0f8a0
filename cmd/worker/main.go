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

	"github.com/hibiken/asynq"

	"github.com/tagboard/tagboard/internal/app"
	"github.com/tagboard/tagboard/internal/audit"
	jobmetrics "github.com/tagboard/tagboard/internal/jobs"
	"github.com/tagboard/tagboard/internal/observability"
	"github.com/tagboard/tagboard/internal/platform/db"
	"github.com/tagboard/tagboard/internal/posts"
	"github.com/tagboard/tagboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.Database("worker"))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cfg.Redis().QueueOpts()
	deliverer := jobs.SMTPDeliverer{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom}
	postsRepo := posts.NewRepository(pool)
	opsMetrics := observability.NewMetrics()
	taskMetrics := jobmetrics.NewMetrics(opsMetrics.Registerer())

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Middleware:  []asynq.MiddlewareFunc{taskMetrics.Middleware},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(deliverer, logger)},
			{Type: jobs.TaskTypeSweepTags, Handler: jobs.NewSweepTagsHandler(postsRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TagSweepCron, Task: jobs.NewSweepTagsTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	ops := &http.Server{
		Addr: cfg.MetricsAddr,
		Handler: app.NewOpsRouter(app.RouterParams{
			Logger:     logger,
			Metrics:    opsMetrics,
			JobHandler: jobs.NewHandler(inspector, logger),
			Timeline:   audit.NewService(audit.NewRepository(pool)),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", slog.String("addr", cfg.MetricsAddr))
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ops.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
