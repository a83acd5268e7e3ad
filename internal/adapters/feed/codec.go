package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"stairs-live/internal/domain"
)

// Encode сериализует событие ленты в JSON.
func Encode(ev domain.ChangeEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal change: %w", err)
	}
	return payload, nil
}

// Decode разбирает событие ленты. Формат совпадает с payload триггеров pg_notify.
func Decode(payload []byte) (domain.ChangeEvent, error) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change: %w", err)
	}
	switch ev.Kind {
	case domain.ChangeContribution:
		if ev.Contribution == nil {
			return domain.ChangeEvent{}, errors.New("decode change: contribution is missing")
		}
	case domain.ChangeGoal:
	case "":
		return domain.ChangeEvent{}, errors.New("decode change: kind is missing")
	default:
		return domain.ChangeEvent{}, fmt.Errorf("decode change: unknown kind %q", ev.Kind)
	}
	return ev, nil
}

// subscription останавливает фоновый цикл чтения и ждёт его завершения.
type subscription struct {
	cancel  context.CancelFunc
	done    chan struct{}
	release func() error
	once    sync.Once
	err     error
}

func newSubscription(cancel context.CancelFunc, release func() error) *subscription {
	return &subscription{cancel: cancel, done: make(chan struct{}), release: release}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.err = s.release()
		}
		<-s.done
	})
	return s.err
}
