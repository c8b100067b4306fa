// Command syncd runs the incident and weather sync service: the three
// scheduler cadences plus the operational HTTP surface.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/the-data-sherpa/vanguard-sub000/internal/adapter/dispatch"
	"github.com/the-data-sherpa/vanguard-sub000/internal/adapter/facebook"
	"github.com/the-data-sherpa/vanguard-sub000/internal/adapter/httpadapter"
	kafkaadapter "github.com/the-data-sherpa/vanguard-sub000/internal/adapter/kafka"
	"github.com/the-data-sherpa/vanguard-sub000/internal/adapter/nws"
	"github.com/the-data-sherpa/vanguard-sub000/internal/adapter/postgres"
	"github.com/the-data-sherpa/vanguard-sub000/internal/config"
	"github.com/the-data-sherpa/vanguard-sub000/internal/observability"
	"github.com/the-data-sherpa/vanguard-sub000/internal/syncer"
)

type readiness struct {
	store *postgres.Store
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	dispatchClient := dispatch.NewClient(cfg.FeedPrimaryURL, cfg.FeedFallbackURL,
		cfg.FeedPassword, cfg.FeedTimeout, logger, metrics, nil)
	nwsClient := nws.NewClient(cfg.NWSBaseURL, cfg.NWSUserAgent, cfg.FeedTimeout, logger, metrics)

	var publisher syncer.SocialPublisher
	if cfg.PostingEnabled() {
		publisher = facebook.NewPublisher("", cfg.FacebookPageID, cfg.FacebookAccessToken,
			cfg.FeedTimeout, logger)
		logger.Info("facebook posting enabled", "page", cfg.FacebookPageID)
	} else {
		logger.Info("facebook posting disabled")
	}

	var events syncer.EventPublisher
	var eventWriter *kafkaadapter.Writer
	if cfg.EventsEnabled() {
		eventWriter = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaResultsTopic, logger)
		events = eventWriter
		logger.Info("sync events enabled", "topic", cfg.KafkaResultsTopic)
	} else {
		logger.Info("sync events disabled")
	}

	var locks syncer.FetchLocker
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		locks = syncer.NewRedisLocker(redisClient, cfg.MinFetchInterval, logger)
		logger.Info("distributed fetch locking enabled", "addr", cfg.RedisAddr)
	} else {
		locks = syncer.NewMemoryLocker(cfg.MinFetchInterval, nil)
	}

	sync := syncer.New(store, store, dispatchClient, nwsClient, publisher, events,
		locks, logger, metrics, nil, syncer.Options{
			RecencyHorizon:    cfg.RecencyHorizon,
			MaxRecordsPerTick: cfg.MaxRecordsPerTick,
			TenantBatchSize:   cfg.TenantBatchSize,
			PostThreshold:     cfg.PostThreshold,
		})

	sched := syncer.NewScheduler(sync, store, logger, metrics, nil, syncer.SchedulerOptions{
		FastInterval:       cfg.FastInterval,
		MediumInterval:     cfg.MediumInterval,
		DailyInterval:      cfg.DailyInterval,
		StaleAfter:         cfg.StaleAfter,
		ArchiveClosedAfter: cfg.ArchiveClosedAfter,
		IncidentRetention:  cfg.IncidentRetention,
		AlertRetention:     cfg.AlertRetention,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{store: store}, store, sync, store, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go sched.Run(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if eventWriter != nil {
		if err := eventWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
