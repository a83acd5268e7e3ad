package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
)

// Store объединяет хранилище пожертвований и цели.
type Store interface {
	domain.ContributionStore
	domain.GoalRepo
}

// PublishingStore публикует событие в ленту после каждой успешной записи.
// Нужен транспортам, для которых БД сама не шлёт уведомления.
type PublishingStore struct {
	Store
	publisher domain.ChangePublisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewPublishingStore оборачивает хранилище публикатором.
func NewPublishingStore(store Store, publisher domain.ChangePublisher, log zerolog.Logger) *PublishingStore {
	return &PublishingStore{Store: store, publisher: publisher, log: log, now: time.Now}
}

// CreateContribution сохраняет пожертвование и рассылает его зрителям.
// Ошибка публикации не отменяет запись: зрители увидят её при следующем обновлении.
func (s *PublishingStore) CreateContribution(ctx context.Context, params domain.NewContributionParams) (domain.Contribution, error) {
	c, err := s.Store.CreateContribution(ctx, params)
	if err != nil {
		return domain.Contribution{}, err
	}
	s.publish(ctx, domain.ChangeEvent{Kind: domain.ChangeContribution, Contribution: &c, OccurredAt: s.now().UTC()})
	return c, nil
}

// UpdateGoal меняет цель и рассылает новое значение.
func (s *PublishingStore) UpdateGoal(ctx context.Context, target decimal.Decimal) (domain.Goal, error) {
	goal, err := s.Store.UpdateGoal(ctx, target)
	if err != nil {
		return domain.Goal{}, err
	}
	s.publish(ctx, domain.ChangeEvent{Kind: domain.ChangeGoal, Goal: &goal, OccurredAt: s.now().UTC()})
	return goal, nil
}

func (s *PublishingStore) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("feed: не удалось опубликовать событие")
	}
}
