package animation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

// Scheduler владеет единственным каналом анимации подъёма.
// Состояния: Idle -> Climbing -> Idle. Повторный запуск во время подъёма невозможен.
type Scheduler struct {
	playback domain.Playback
	log      zerolog.Logger
	onIdle   func(domain.AnimationRequest)

	mu      sync.Mutex
	busy    bool
	current domain.AnimationRequest
	started time.Time
	timer   *time.Timer
	gen     uint64
	closed  bool
}

// Option настраивает планировщик.
type Option func(*Scheduler)

// withIdleHook вызывается после возврата в Idle.
func withIdleHook(fn func(domain.AnimationRequest)) Option {
	return func(s *Scheduler) {
		s.onIdle = fn
	}
}

// NewScheduler создаёт планировщик поверх дескриптора анимации.
func NewScheduler(playback domain.Playback, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{playback: playback, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestClimb запускает подъём, если канал свободен.
// Возвращает false без побочных эффектов, если анимация не подключена или уже идёт подъём.
func (s *Scheduler) RequestClimb(req domain.AnimationRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.playback == nil || !s.playback.Ready() {
		s.log.Warn().Err(domain.ErrPlaybackUnavailable).Str("amount", req.Amount.String()).Msg("animation: No direction input reference")
		metrics.IncClimb(metrics.ClimbUnavailable)
		return false
	}
	if s.busy {
		s.log.Debug().Str("amount", req.Amount.String()).Msg("animation: подъём уже идёт, запрос проигнорирован")
		metrics.IncClimb(metrics.ClimbBusy)
		return false
	}
	if err := s.playback.SetDirection(domain.DirectionForward); err != nil {
		s.log.Error().Err(err).Msg("animation: не удалось включить подъём")
		metrics.IncClimb(metrics.ClimbUnavailable)
		return false
	}

	s.busy = true
	s.current = req
	s.started = time.Now()
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(req.Duration(), func() { s.finish(gen) })

	s.log.Info().
		Str("amount", req.Amount.String()).
		Str("duration_seconds", req.DurationSeconds.String()).
		Msg("animation: подъём начат")
	metrics.IncClimb(metrics.ClimbAccepted)
	return true
}

// finish возвращает канал в Idle. Срабатывания устаревших таймеров игнорируются.
func (s *Scheduler) finish(gen uint64) {
	s.mu.Lock()
	if !s.busy || s.gen != gen {
		s.mu.Unlock()
		return
	}
	if err := s.playback.SetDirection(domain.DirectionNeutral); err != nil {
		s.log.Error().Err(err).Msg("animation: не удалось остановить подъём")
	}
	req := s.current
	s.busy = false
	s.current = domain.AnimationRequest{}
	s.timer = nil
	hook := s.onIdle
	s.mu.Unlock()

	s.log.Info().Str("amount", req.Amount.String()).Msg("animation: подъём завершён")
	if hook != nil {
		hook(req)
	}
}

// Busy сообщает, идёт ли сейчас подъём.
func (s *Scheduler) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Current возвращает текущий подъём, если он идёт.
func (s *Scheduler) Current() (domain.AnimationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.busy
}

// Close отменяет таймер и останавливает анимацию.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.busy {
		if err := s.playback.SetDirection(domain.DirectionNeutral); err != nil {
			s.log.Error().Err(err).Msg("animation: не удалось остановить подъём при закрытии")
		}
		s.busy = false
		s.current = domain.AnimationRequest{}
	}
}
