package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStore описывает внешнее хранилище пожертвований и цели.
type ContributionStore interface {
	CreateContribution(ctx context.Context, params NewContributionParams) (Contribution, error)
	SumAllAmounts(ctx context.Context) (decimal.Decimal, error)
	// ListRecent возвращает последние пожертвования, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]Contribution, error)
	// ListAll возвращает все пожертвования, новые первыми.
	ListAll(ctx context.Context) ([]Contribution, error)
	// GetGoal возвращает цель или DefaultGoal, если записи нет.
	GetGoal(ctx context.Context) (Goal, error)
}

// GoalRepo обновляет цель сбора. Используется только администратором.
type GoalRepo interface {
	UpdateGoal(ctx context.Context, target decimal.Decimal) (Goal, error)
}

// Playback описывает внешний дескриптор анимации.
type Playback interface {
	// Ready сообщает, инициализирован ли вход direction.
	Ready() bool
	SetDirection(d Direction) error
}

// SessionSource отдаёт текущую личность зрителя. Может меняться в любой момент.
type SessionSource interface {
	Current() Session
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) (bool, error)
}
