package playback

import (
	"errors"
	"sync"
	"time"

	"stairs-live/internal/domain"
)

// ErrDetached возвращается, если рендерер ещё не подключился.
var ErrDetached = errors.New("renderer is not attached")

// State описывает то, что рендерер читает при опросе.
type State struct {
	Attached   bool             `json:"attached"`
	RendererID string           `json:"renderer_id,omitempty"`
	Direction  domain.Direction `json:"direction"`
	Name       string           `json:"direction_name"`
	ChangedAt  time.Time        `json:"changed_at"`
}

// Handle управляет входом direction стейт-машины анимации.
// Рендерер подключается через Attach и опрашивает State.
type Handle struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

var _ domain.Playback = (*Handle)(nil)

// NewHandle создаёт неподключённый дескриптор.
func NewHandle() *Handle {
	return &Handle{now: time.Now}
}

// Attach регистрирует рендерер. Повторное подключение сбрасывает направление.
func (h *Handle) Attach(rendererID string) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = State{
		Attached:   true,
		RendererID: rendererID,
		Direction:  domain.DirectionNeutral,
		Name:       domain.DirectionNeutral.String(),
		ChangedAt:  h.now(),
	}
	return h.state
}

// Detach отключает рендерер.
func (h *Handle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = State{}
}

// Ready сообщает, подключён ли рендерер.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Attached
}

// SetDirection меняет значение входа. Повторная установка того же значения ничего не меняет.
func (h *Handle) SetDirection(d domain.Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Attached {
		return ErrDetached
	}
	if h.state.Direction == d {
		return nil
	}
	h.state.Direction = d
	h.state.Name = d.String()
	h.state.ChangedAt = h.now()
	return nil
}

// State возвращает текущее состояние входа.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}
