package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stairs-live/internal/adapters/feed"
	"stairs-live/internal/adapters/playback"
	"stairs-live/internal/adapters/repo"
	"stairs-live/internal/adapters/session"
	"stairs-live/internal/domain"
	"stairs-live/internal/infra/cache"
	"stairs-live/internal/infra/config"
	"stairs-live/internal/infra/db"
	httpinfra "stairs-live/internal/infra/http"
	applog "stairs-live/internal/infra/log"
	"stairs-live/internal/infra/metrics"
	"stairs-live/internal/usecase/animation"
	"stairs-live/internal/usecase/coordinator"
	"stairs-live/internal/usecase/messages"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("viewer: нет подключения к БД")
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("viewer: нет подключения к Redis")
		}
		defer redisClient.Close()
	}

	if err := db.Migrate(ctx, pool, cfg.Feed.Channel); err != nil {
		logger.Fatal().Err(err).Msg("viewer: не удалось применить миграции")
	}

	pg := repo.NewPostgres(pool)
	store, changes, closeFeed := buildFeed(cfg, pool, pg, redisClient, logger)
	defer closeFeed()

	holder := session.NewHolder(domain.Session{DonorID: cfg.Session.DonorID, Email: cfg.Session.Email})
	handle := playback.NewHandle()
	scheduler := animation.NewScheduler(handle, applog.Component(logger, "animation"))
	queue := messages.NewQueue(applog.Component(logger, "messages"), messages.WithTTL(cfg.Display.MessageTTL))

	coord := coordinator.New(store, holder, scheduler, queue, applog.Component(logger, "coordinator"),
		coordinator.WithFeed(changes),
		coordinator.WithRecentLimit(cfg.Display.RecentLimit),
		coordinator.WithLocation(cfg.Location()),
	)

	var dedup domain.Cache
	if redisClient != nil {
		dedup = cache.NewRedis(redisClient)
	}
	fixed, err := decimal.NewFromString(cfg.Payment.FixedAmount)
	if err != nil {
		logger.Fatal().Err(err).Str("value", cfg.Payment.FixedAmount).Msg("viewer: некорректная PAYMENT_FIXED_AMOUNT")
	}

	srv := httpinfra.NewServer(applog.Component(logger, "http"))
	httpinfra.NewAPI(coord, holder, handle, dedup, httpinfra.APIConfig{
		WebhookSecret: cfg.Payment.WebhookSecret,
		DedupTTL:      cfg.Payment.DedupTTL,
		FixedAmount:   fixed,
	}, applog.Component(logger, "http")).Register(srv.Router)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := coord.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("viewer: цикл событий завершился с ошибкой")
		}
	}()

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port), cfg.Server.ReadTimeout, cfg.Server.WriteTimeout); err != nil {
			logger.Error().Err(err).Msg("viewer: сервер остановлен")
			stop()
		}
	}()

	logger.Info().Str("feed", cfg.Feed.Driver).Msg("viewer: старт")
	<-ctx.Done()
	logger.Info().Msg("viewer: остановка")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("viewer: graceful shutdown не удался")
	}
	<-loopDone
}

// buildFeed выбирает транспорт ленты. Для redis и rabbitmq запись оборачивается публикатором,
// для postgres уведомления шлют триггеры БД.
func buildFeed(cfg config.AppConfig, pool *pgxpool.Pool, pg *repo.Postgres, redisClient *redis.Client, logger zerolog.Logger) (domain.ContributionStore, domain.ChangeFeed, func()) {
	feedLog := applog.Component(logger, "feed")
	switch cfg.Feed.Driver {
	case config.FeedRedis:
		if redisClient == nil {
			logger.Fatal().Msg("viewer: FEED_DRIVER=redis требует REDIS_ADDR")
		}
		rf := feed.NewRedisFeed(redisClient, cfg.Feed.Channel, feedLog)
		return feed.NewPublishingStore(pg, rf, feedLog), rf, func() {}
	case config.FeedRabbitMQ:
		rf, err := feed.NewRabbitFeed(cfg.RabbitURL, cfg.Feed.Exchange, feedLog)
		if err != nil {
			logger.Fatal().Err(err).Msg("viewer: нет подключения к RabbitMQ")
		}
		return feed.NewPublishingStore(pg, rf, feedLog), rf, func() { _ = rf.Close() }
	case config.FeedPostgres, "":
		return pg, feed.NewPostgresFeed(pool, cfg.Feed.Channel, feedLog), func() {}
	default:
		logger.Fatal().Str("driver", cfg.Feed.Driver).Msg("viewer: неизвестный FEED_DRIVER")
		return nil, nil, nil
	}
}
