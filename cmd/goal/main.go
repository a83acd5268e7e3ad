package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"stairs-live/internal/adapters/feed"
	"stairs-live/internal/adapters/repo"
	"stairs-live/internal/infra/cache"
	"stairs-live/internal/infra/config"
	"stairs-live/internal/infra/db"
	applog "stairs-live/internal/infra/log"
)

// goal показывает и меняет целевую сумму сбора.
//
//	goal            текущая цель
//	goal -set 5000  новая цель
func main() {
	target := flag.String("set", "", "новая целевая сумма")
	flag.Parse()

	cfg := config.Load()
	logger := applog.Component(applog.NewLogger(cfg.AppEnv), "goal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("goal: нет подключения к БД")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool, cfg.Feed.Channel); err != nil {
		logger.Fatal().Err(err).Msg("goal: не удалось применить миграции")
	}

	pg := repo.NewPostgres(pool)
	if *target == "" {
		goal, err := pg.GetGoal(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("goal: не удалось прочитать цель")
		}
		fmt.Fprintf(os.Stdout, "%s: %s\n", goal.Name, goal.TargetAmount.StringFixed(2))
		return
	}

	amount, err := decimal.NewFromString(*target)
	if err != nil || !amount.IsPositive() {
		logger.Fatal().Str("value", *target).Msg("goal: сумма должна быть положительным числом")
	}

	// postgres-лента получает изменение от триггера, остальным транспортам его нужно опубликовать
	var store feed.Store = pg
	switch cfg.Feed.Driver {
	case config.FeedRedis:
		client, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("goal: нет подключения к Redis")
		}
		defer client.Close()
		store = feed.NewPublishingStore(pg, feed.NewRedisFeed(client, cfg.Feed.Channel, logger), logger)
	case config.FeedRabbitMQ:
		rf, err := feed.NewRabbitFeed(cfg.RabbitURL, cfg.Feed.Exchange, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("goal: нет подключения к RabbitMQ")
		}
		defer rf.Close()
		store = feed.NewPublishingStore(pg, rf, logger)
	}

	goal, err := store.UpdateGoal(ctx, amount)
	if err != nil {
		logger.Fatal().Err(err).Msg("goal: не удалось обновить цель")
	}
	logger.Info().Str("target", goal.TargetAmount.String()).Msg("goal: цель обновлена")
	fmt.Fprintf(os.Stdout, "%s: %s\n", goal.Name, goal.TargetAmount.StringFixed(2))
}
