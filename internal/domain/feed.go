package domain

import (
	"context"
	"time"
)

// ChangeKind описывает тип записи, изменившейся в хранилище.
type ChangeKind string

const (
	// ChangeContribution означает, что вставлено новое пожертвование.
	ChangeContribution ChangeKind = "contribution"
	// ChangeGoal означает, что администратор обновил цель.
	ChangeGoal ChangeKind = "goal"
)

// ChangeEvent описывает сообщение ленты изменений, общей для всех зрителей.
type ChangeEvent struct {
	Kind         ChangeKind    `json:"kind"`
	Contribution *Contribution `json:"contribution,omitempty"`
	Goal         *Goal         `json:"goal,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// ChangeHandler обрабатывает событие ленты.
type ChangeHandler func(ctx context.Context, event ChangeEvent)

// Subscription описывает активную подписку на ленту изменений.
type Subscription interface {
	// Close освобождает подписку. После возврата обработчик больше не вызывается.
	Close() error
}

// ChangeFeed доставляет события о вставках всем подключённым зрителям.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handler ChangeHandler) (Subscription, error)
}

// ChangePublisher публикует события в ленту. Нужен транспортам без триггеров в БД.
type ChangePublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
}
