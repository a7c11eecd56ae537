// Command exampleservice demonstrates wiring a Service end to end: a
// registered worker, a cron-driven report, and graceful shutdown on
// SIGINT/SIGTERM. It is not part of the core library; it exists so the
// wiring documented in SPEC_FULL.md has a runnable reference.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"joblifecycle/internal/config"
	"joblifecycle/internal/jobs"
	"joblifecycle/internal/report"
	"joblifecycle/internal/reporter"
	"joblifecycle/internal/service"
	"joblifecycle/internal/store"
	"joblifecycle/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	notifier := store.NewRedisNotifier(redisClient)

	pg, err := store.NewPostgres(ctx, cfg.PostgresDSN, notifier)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Error("migrate", "error", err)
		os.Exit(1)
	}

	svc := service.New(cfg.ServiceName, pg,
		service.WithConcurrency(cfg.Concurrency),
		service.WithDebugUpdates(cfg.EnableDebugUpdates),
		service.WithTraceUpdates(cfg.EnableTraceUpdates),
		service.WithLogger(log),
		service.WithFinishReporter(reporter.Config{
			Kind:         reporter.KindChatWebhook,
			TargetStatus: jobs.StatusFailure,
			Params:       map[string]string{"url": os.Getenv("FAILURE_WEBHOOK_URL")},
		}),
	)

	svc.On("echo", worker.Spec{
		Timeout: 30 * time.Second,
		Work: func(ctx context.Context, job *jobs.Job, wctx *worker.Context) (any, error) {
			if err := wctx.Log.Info(ctx, "echoing", job.Config); err != nil {
				return nil, err
			}
			return map[string]any{"echoed": job.Config}, nil
		},
	})

	if _, err := svc.AddReport(report.Config{
		Name: "daily-summary",
		JobMappings: []report.ColumnMapping{
			{Column: "Type", Pointer: "/type"},
			{Column: "Status", Pointer: "errorMappings"},
		},
		ErrorMappings:    map[string]string{"success": "OK", "unknown": "Failed"},
		Frequency:        "0 0 0 * * *",
		EmailServiceName: cfg.EmailServiceName,
		Email: func() report.EmailTemplate {
			return report.EmailTemplate{
				From:    cfg.ReportFrom,
				ToName:  "Operations",
				ToEmail: "ops@example.com",
				Subject: fmt.Sprintf("%s daily job summary", cfg.ServiceName),
				Text:    "See attached CSV for today's job summary.",
			}
		},
	}); err != nil {
		log.Error("register report", "error", err)
		os.Exit(1)
	}

	skip := cfg.SkipQueueOnStartup
	if err := svc.Start(ctx, &skip); err != nil {
		log.Error("start service", "error", err)
		os.Exit(1)
	}
	log.Info("service started", "name", cfg.ServiceName)

	<-ctx.Done()
	log.Info("shutting down")
	svc.Stop()
}
