package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы ленты изменений.
const (
	FeedPostgres = "postgres"
	FeedRedis    = "redis"
	FeedRabbitMQ = "rabbitmq"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"UTC"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Feed struct {
		Driver   string `envconfig:"FEED_DRIVER" default:"postgres"`
		Channel  string `envconfig:"FEED_CHANNEL" default:"donations_changes"`
		Exchange string `envconfig:"FEED_EXCHANGE" default:"donations.changes"`
	} `envconfig:""`

	Session struct {
		Email   string `envconfig:"SESSION_EMAIL"`
		DonorID string `envconfig:"SESSION_DONOR_ID"`
	} `envconfig:""`

	Display struct {
		MessageTTL  time.Duration `envconfig:"MESSAGE_TTL" default:"5s"`
		RecentLimit int           `envconfig:"RECENT_LIMIT" default:"5"`
	} `envconfig:""`

	Payment struct {
		WebhookSecret string        `envconfig:"PAYMENT_WEBHOOK_SECRET"`
		DedupTTL      time.Duration `envconfig:"PAYMENT_DEDUP_TTL" default:"24h"`
		FixedAmount   string        `envconfig:"PAYMENT_FIXED_AMOUNT" default:"1"`
	} `envconfig:""`

	Server struct {
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Process()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Process разбирает окружение и возвращает ошибку вместо завершения процесса.
func Process() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Location возвращает часовой пояс для суточных и почасовых корзин.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
