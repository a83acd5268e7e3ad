package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

const reconnectDelay = time.Second

// PostgresFeed доставляет события через LISTEN/NOTIFY. Уведомления шлют триггеры БД.
type PostgresFeed struct {
	pool    *pgxpool.Pool
	channel string
	log     zerolog.Logger
}

var _ domain.ChangeFeed = (*PostgresFeed)(nil)

// NewPostgresFeed создаёт ленту на канале channel.
func NewPostgresFeed(pool *pgxpool.Pool, channel string, log zerolog.Logger) *PostgresFeed {
	return &PostgresFeed{pool: pool, channel: channel, log: log}
}

// Subscribe занимает соединение пула под LISTEN и читает уведомления в фоне.
// При обрыве соединения подписка переподключается, прежние данные у потребителя остаются.
func (f *PostgresFeed) Subscribe(ctx context.Context, handler domain.ChangeHandler) (domain.Subscription, error) {
	conn, err := f.listen(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel, nil)
	go func() {
		defer close(sub.done)
		for {
			err := f.consume(subCtx, conn, handler)
			conn.Release()
			if subCtx.Err() != nil {
				return
			}
			metrics.FeedErrors.WithLabelValues("postgres").Inc()
			f.log.Warn().Err(err).Str("channel", f.channel).Msg("feed: соединение LISTEN потеряно, переподключаемся")

			for {
				select {
				case <-subCtx.Done():
					return
				case <-time.After(reconnectDelay):
				}
				conn, err = f.listen(subCtx)
				if err == nil {
					break
				}
				f.log.Warn().Err(err).Msg("feed: не удалось переподключиться")
			}
		}
	}()

	f.log.Info().Str("channel", f.channel).Msg("feed: подписка postgres активна")
	return sub, nil
}

func (f *PostgresFeed) listen(ctx context.Context) (*pgxpool.Conn, error) {
	start := time.Now()
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		metrics.ObserveNetworkRequest("postgres", "acquire", f.channel, start, err)
		return nil, err
	}
	_, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize())
	metrics.ObserveNetworkRequest("postgres", "listen", f.channel, start, err)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

func (f *PostgresFeed) consume(ctx context.Context, conn *pgxpool.Conn, handler domain.ChangeHandler) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				// соединение с незавершённым ожиданием нельзя вернуть в пул как есть
				_ = conn.Conn().Close(context.Background())
			}
			return err
		}
		ev, err := Decode([]byte(n.Payload))
		if err != nil {
			metrics.FeedErrors.WithLabelValues("postgres").Inc()
			f.log.Warn().Err(err).Msg("feed: пропускаем некорректное уведомление")
			continue
		}
		handler(ctx, ev)
	}
}
