// Package main runs the background job worker (poll result exports to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-classroom/livepoll/config"
	"github.com/aura-classroom/livepoll/internal/store"
	"github.com/aura-classroom/livepoll/internal/worker"
	"github.com/aura-classroom/livepoll/pkg/database"
	"github.com/aura-classroom/livepoll/pkg/queue"
	"github.com/aura-classroom/livepoll/pkg/redis"
	"github.com/aura-classroom/livepoll/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Store.Driver != "postgres" {
		logger.Fatal("worker requires STORE_DRIVER=postgres", zap.String("driver", cfg.Store.Driver))
	}
	if cfg.Redis.Addr == "" || cfg.AWS.ExportsBucket == "" {
		logger.Fatal("worker requires REDIS_ADDR and AWS_S3_EXPORTS_BUCKET")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ExportsBucket:        cfg.AWS.ExportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewExportProcessor(store.NewPostgres(pool), s3Client, jobQueue, clockwork.NewRealClock(), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
		logger.Info("worker stopped")
	case <-time.After(worker.JobTimeout + 5*time.Second):
		logger.Warn("worker stop timed out")
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
