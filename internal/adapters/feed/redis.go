package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

// RedisFeed реализует ленту изменений на Redis Pub/Sub.
type RedisFeed struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

var (
	_ domain.ChangeFeed      = (*RedisFeed)(nil)
	_ domain.ChangePublisher = (*RedisFeed)(nil)
)

// NewRedisFeed создаёт ленту по указанному каналу.
func NewRedisFeed(client *redis.Client, channel string, log zerolog.Logger) *RedisFeed {
	return &RedisFeed{client: client, channel: channel, log: log}
}

// Publish рассылает событие всем подписчикам.
func (f *RedisFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	start := time.Now()
	err = f.client.Publish(ctx, f.channel, payload).Err()
	metrics.ObserveNetworkRequest("redis", "publish", f.channel, start, err)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe дожидается подтверждения подписки и читает сообщения в фоне.
// Переподключение выполняет сам клиент go-redis.
func (f *RedisFeed) Subscribe(ctx context.Context, handler domain.ChangeHandler) (domain.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	start := time.Now()
	_, err := pubsub.Receive(ctx)
	metrics.ObserveNetworkRequest("redis", "subscribe", f.channel, start, err)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel, pubsub.Close)
	messages := pubsub.Channel()
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					metrics.FeedErrors.WithLabelValues("redis").Inc()
					f.log.Warn().Err(err).Msg("feed: пропускаем некорректное сообщение")
					continue
				}
				handler(subCtx, ev)
			}
		}
	}()

	f.log.Info().Str("channel", f.channel).Msg("feed: подписка redis активна")
	return sub, nil
}
