// Package main runs the live polling HTTP server with SSE/WebSocket push and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-classroom/livepoll/config"
	"github.com/aura-classroom/livepoll/internal/chat"
	"github.com/aura-classroom/livepoll/internal/exports"
	"github.com/aura-classroom/livepoll/internal/polls"
	"github.com/aura-classroom/livepoll/internal/questions"
	"github.com/aura-classroom/livepoll/internal/realtime"
	"github.com/aura-classroom/livepoll/internal/roster"
	"github.com/aura-classroom/livepoll/internal/server"
	"github.com/aura-classroom/livepoll/internal/session"
	"github.com/aura-classroom/livepoll/internal/store"
	"github.com/aura-classroom/livepoll/internal/votes"
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

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if cfg.Database.Migrate {
			if err := database.Migrate(ctx, pool, logger); err != nil {
				logger.Fatal("migrate", zap.Error(err))
			}
		}
		st = store.NewPostgres(pool)
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemory()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			if cfg.Realtime.Bridge == "redis" {
				logger.Fatal("redis", zap.Error(err))
			}
			logger.Warn("redis disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	var bridge realtime.Bridge
	switch cfg.Realtime.Bridge {
	case "redis":
		bridge = realtime.NewRedisPubSub(rdb.Client, logger)
	case "nats":
		nb, err := realtime.NewNATSBridge(realtime.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
		if err != nil {
			logger.Fatal("nats", zap.Error(err))
		}
		defer nb.Close()
		bridge = nb
	}
	broker := realtime.NewBroker(bridge, clock, logger)

	tokens := session.NewTokenService(cfg.Session.Secret, cfg.Session.ExpireHours)
	cookies := session.CookieOptions{Secure: cfg.Session.CookieSecure, MaxAge: cfg.Session.ExpireHours * 3600}

	var scheduler questions.Scheduler
	var expirer *questions.Expirer
	if cfg.Poll.AutoClose {
		expirer = questions.NewExpirer(st, broker, clock, cfg.Poll.CloseGrace, logger)
		if err := expirer.Resume(ctx, st); err != nil {
			logger.Error("resume question expiry", zap.Error(err))
		}
		scheduler = expirer
	}

	pollSvc := polls.NewService(st, tokens, broker, clock, logger)
	questionSvc := questions.NewService(st, broker, scheduler, clock, questions.Limits{
		MinTimeLimitMs:     cfg.Poll.MinTimeLimitMs,
		DefaultTimeLimitMs: cfg.Poll.DefaultTimeLimitMs,
	}, logger)
	voteSvc := votes.NewService(st, broker, clock, logger)
	rosterSvc := roster.NewService(st, broker, clock, logger)
	chatSvc := chat.NewService(st, broker, clock, chat.Options{
		HistoryLimit: cfg.Chat.HistoryLimit,
		MaxLength:    cfg.Chat.MaxLength,
	}, logger)

	// Exports need both the job queue and the bucket.
	var jobs exports.JobQueue
	var objects exports.ObjectStore
	if rdb != nil && cfg.AWS.ExportsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			jobs = queue.NewQueue(rdb.Client, logger)
			objects = s3Client
		}
	}
	exportSvc := exports.NewService(jobs, objects, logger)

	router := server.New(server.Deps{
		Tokens:      tokens,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Broker:      broker,
		Stream:      realtime.StreamOptions{Heartbeat: cfg.Realtime.Heartbeat, Buffer: cfg.Realtime.Buffer},
		Polls:       polls.NewHandler(pollSvc, cookies, logger),
		Questions:   questions.NewHandler(questionSvc, logger),
		Votes:       votes.NewHandler(voteSvc, logger),
		Roster:      roster.NewHandler(rosterSvc, logger),
		Kicks:       rosterSvc,
		Chat:        chat.NewHandler(chatSvc, logger),
		Exports:     exports.NewHandler(exportSvc, logger),
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("bridge", cfg.Realtime.Bridge))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Closing the broker ends open streams so Shutdown does not wait on them.
	broker.Close()
	if expirer != nil {
		expirer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
