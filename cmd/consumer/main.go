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

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/messaging"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping consumer startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if !cfg.CacheDisabled {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, configuration cache disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				_ = redisClient.Close()
			}()
		}
	}

	metrics := observability.NewMetrics()
	metricsServer := &http.Server{
		Addr:              cfg.ConsumerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("consumer metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	service := accounting.NewService(accounting.Deps{
		Pool:     pool,
		Cache:    cache.NewVersioned(redisClient, cfg.CacheTTL),
		Audit:    shared.NewAuditLogger(pool),
		Observer: metrics,
		Logger:   logger,
	})
	hooks := integration.NewHooks(service, logger)

	reader := messaging.NewReader(messaging.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaEventsTopic,
		GroupID: cfg.KafkaGroupID,
		MaxWait: cfg.KafkaMaxWait,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn("kafka reader close", slog.Any("error", err))
		}
	}()

	var dlq integration.DeadLetterPublisher
	if cfg.KafkaDLQTopic != "" {
		deadLetter := messaging.NewDeadLetter(messaging.NewWriter(cfg.KafkaBrokers, cfg.KafkaDLQTopic), cfg.KafkaDLQTopic, logger)
		defer func() {
			_ = deadLetter.Close()
		}()
		dlq = deadLetter
	}

	consumer := integration.NewConsumer(reader, dlq, integration.HookHandler{Hooks: hooks}, logger, integration.ConsumerConfig{
		MaxAttempts: cfg.KafkaMaxAttempts,
	})

	logger.Info("consuming business events",
		slog.String("topic", cfg.KafkaEventsTopic),
		slog.String("group", cfg.KafkaGroupID))
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer run", slog.Any("error", err))
		os.Exit(1)
	}
}
