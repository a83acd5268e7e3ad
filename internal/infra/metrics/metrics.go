package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	registerOnce sync.Once

	ContributionsPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "contributions_persisted_total",
		Help: "Пожертвования, сохранённые после локального платежа",
	})
	ContributionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "contribution_events_total",
		Help: "События о пожертвованиях по источнику и принадлежности",
	}, []string{"source", "origin"})
	Climbs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "climbs_total",
		Help: "Запросы на подъём по результату",
	}, []string{"outcome"})
	AckMessagesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ack_messages_active",
		Help: "Сообщения-благодарности на экране",
	})
	RefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_errors_total",
		Help: "Ошибки перечитывания агрегатов",
	})
	FeedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_errors_total",
		Help: "Ошибки ленты изменений",
	}, []string{"driver"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// Исходы запроса на подъём.
const (
	ClimbAccepted    = "accepted"
	ClimbBusy        = "busy"
	ClimbUnavailable = "unavailable"
	ClimbDropped     = "dropped"
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerOnce.Do(func() {
		registerer.MustRegister(
			ContributionsPersisted,
			ContributionEvents,
			Climbs,
			AckMessagesActive,
			RefreshErrors,
			FeedErrors,
			NetworkRequestDuration,
			NetworkRequestTotal,
		)
	})
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncContributionEvent учитывает событие о пожертвовании.
func IncContributionEvent(source string, self bool) {
	origin := "other"
	if self {
		origin = "self"
	}
	ContributionEvents.WithLabelValues(source, origin).Inc()
}

// IncClimb учитывает исход запроса на подъём.
func IncClimb(outcome string) {
	Climbs.WithLabelValues(outcome).Inc()
}
