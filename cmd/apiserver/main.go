// Command apiserver runs the read-only status API: health, job lookup,
// and Prometheus metrics, backed by the same store a Service's jobs live
// in.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"joblifecycle/internal/api"
	"joblifecycle/internal/config"
	"joblifecycle/internal/ratelimit"
	"joblifecycle/internal/store"
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

	limiter := ratelimit.NewTokenBucket(redisClient, 100, 10, time.Hour)
	server := api.New(pg, limiter)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("apiserver listening", "port", cfg.HTTPPort)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("listen", "error", err)
		os.Exit(1)
	}
}
