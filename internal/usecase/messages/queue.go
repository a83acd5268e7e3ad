package messages

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

// DefaultTTL задаёт время жизни сообщения на экране.
const DefaultTTL = 5 * time.Second

var decimalOne = decimal.NewFromInt(1)

// DefaultPositions задаёт экранные слоты сообщений в процентах от viewport.
var DefaultPositions = []domain.Position{
	{X: 20, Y: 20},
	{X: 50, Y: 15},
	{X: 75, Y: 25},
	{X: 25, Y: 60},
	{X: 55, Y: 45},
	{X: 70, Y: 65},
}

// Queue хранит сообщения-благодарности, которые сейчас на экране.
// Размер не ограничен: при всплеске пожертвований сообщения могут перекрываться.
type Queue struct {
	ttl       time.Duration
	positions []domain.Position
	pick      func(n int) int
	now       func() time.Time
	onExpire  func(domain.AckMessage)
	log       zerolog.Logger

	mu     sync.Mutex
	active map[string]*entry
	seq    uint64
	closed bool
}

type entry struct {
	msg   domain.AckMessage
	timer *time.Timer
}

// Option настраивает очередь.
type Option func(*Queue)

// WithTTL задаёт время показа сообщения.
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithPositions задаёт набор экранных слотов.
func WithPositions(positions []domain.Position) Option {
	return func(q *Queue) {
		if len(positions) > 0 {
			q.positions = append([]domain.Position(nil), positions...)
		}
	}
}

// WithPicker подменяет генератор случайного слота.
func WithPicker(pick func(n int) int) Option {
	return func(q *Queue) {
		if pick != nil {
			q.pick = pick
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// withExpireHook вызывается после удаления сообщения с экрана.
func withExpireHook(fn func(domain.AckMessage)) Option {
	return func(q *Queue) {
		q.onExpire = fn
	}
}

// NewQueue создаёт очередь сообщений.
func NewQueue(log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		ttl:       DefaultTTL,
		positions: DefaultPositions,
		pick:      rand.Intn,
		now:       time.Now,
		log:       log,
		active:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue показывает сообщение и взводит таймер на его удаление.
// Идентификатор уникален даже при повторной доставке одного и того же пожертвования.
func (q *Queue) Enqueue(c domain.Contribution, self bool) domain.AckMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.seq++
	msg := domain.AckMessage{
		ID:           fmt.Sprintf("%s-%d-%d", c.ID, now.UnixNano(), q.seq),
		Contribution: c,
		Position:     q.positions[q.pick(len(q.positions))],
		Self:         self,
		Text:         ThankYouText(c, self),
		CreatedAt:    now,
		ExpiresAt:    now.Add(q.ttl),
	}
	if q.closed {
		return msg
	}

	id := msg.ID
	q.active[id] = &entry{msg: msg, timer: time.AfterFunc(q.ttl, func() { q.expire(id) })}
	metrics.AckMessagesActive.Set(float64(len(q.active)))
	q.log.Debug().Str("message_id", id).Bool("self", self).Msg("messages: показываем благодарность")
	return msg
}

// expire удаляет ровно одно сообщение по идентификатору.
func (q *Queue) expire(id string) {
	q.mu.Lock()
	e, ok := q.active[id]
	if ok {
		delete(q.active, id)
		metrics.AckMessagesActive.Set(float64(len(q.active)))
	}
	hook := q.onExpire
	q.mu.Unlock()

	if ok && hook != nil {
		hook(e.msg)
	}
}

// Active возвращает сообщения на экране, упорядоченные по времени истечения.
func (q *Queue) Active() []domain.AckMessage {
	q.mu.Lock()
	out := make([]domain.AckMessage, 0, len(q.active))
	for _, e := range q.active {
		out = append(out, e.msg)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

// Close останавливает все таймеры и очищает экран.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, e := range q.active {
		e.timer.Stop()
		delete(q.active, id)
	}
	metrics.AckMessagesActive.Set(0)
}

// ThankYouText формирует текст благодарности.
func ThankYouText(c domain.Contribution, self bool) string {
	stairs := "stair"
	if c.Amount.GreaterThan(decimalOne) {
		stairs = "stairs"
	}
	if self {
		return fmt.Sprintf("Thanks for helping NuNu climb %s %s closer to heaven! 🎉", c.Amount.String(), stairs)
	}
	return fmt.Sprintf("%s helped NuNu climb %s %s closer to heaven! ✨", c.DonorName(), c.Amount.String(), stairs)
}
