package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

// RabbitFeed реализует ленту изменений на fanout-обменнике RabbitMQ.
// Каждый зритель получает собственную эксклюзивную очередь.
type RabbitFeed struct {
	conn     *amqp.Connection
	exchange string
	log      zerolog.Logger

	mu      sync.Mutex
	publish *amqp.Channel
}

var (
	_ domain.ChangeFeed      = (*RabbitFeed)(nil)
	_ domain.ChangePublisher = (*RabbitFeed)(nil)
)

// NewRabbitFeed подключается к брокеру и объявляет обменник.
func NewRabbitFeed(amqpURL, exchange string, log zerolog.Logger) (*RabbitFeed, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	start := time.Now()
	conn, err := amqp.Dial(amqpURL)
	metrics.ObserveNetworkRequest("rabbitmq", "dial", exchange, start, err)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &RabbitFeed{conn: conn, exchange: exchange, log: log, publish: ch}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return nil
}

// Publish рассылает событие во все очереди зрителей.
func (f *RabbitFeed) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	err = f.publish.PublishWithContext(ctx, f.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Kind),
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", f.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe создаёт временную очередь, привязывает её к обменнику и читает сообщения в фоне.
func (f *RabbitFeed) Subscribe(ctx context.Context, handler domain.ChangeHandler) (domain.Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: open channel: %w", domain.ErrSubscription, err)
	}
	queueName := "stairs-viewer-" + uuid.NewString()
	start := time.Now()
	q, err := ch.QueueDeclare(queueName, false, true, true, false, nil)
	if err == nil {
		err = ch.QueueBind(q.Name, "", f.exchange, false, nil)
	}
	var deliveries <-chan amqp.Delivery
	if err == nil {
		deliveries, err = ch.Consume(q.Name, "", true, true, false, false, nil)
	}
	metrics.ObserveNetworkRequest("rabbitmq", "subscribe", f.exchange, start, err)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(cancel, ch.Close)
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					if subCtx.Err() == nil {
						metrics.FeedErrors.WithLabelValues("rabbitmq").Inc()
						f.log.Warn().Str("queue", q.Name).Msg("feed: канал rabbitmq закрыт брокером")
					}
					return
				}
				ev, err := Decode(d.Body)
				if err != nil {
					metrics.FeedErrors.WithLabelValues("rabbitmq").Inc()
					f.log.Warn().Err(err).Str("message_id", d.MessageId).Msg("feed: пропускаем некорректное сообщение")
					continue
				}
				handler(subCtx, ev)
			}
		}
	}()

	f.log.Info().Str("exchange", f.exchange).Str("queue", q.Name).Msg("feed: подписка rabbitmq активна")
	return sub, nil
}

// Close закрывает соединение с брокером.
func (f *RabbitFeed) Close() error {
	return f.conn.Close()
}
